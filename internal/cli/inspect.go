package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

// envelopeInfo is the inspect output. Nothing in it needs a key.
type envelopeInfo struct {
	Magic          string `json:"magic"`
	KAS            string `json:"kas"`
	KASKeyID       string `json:"kas_key_id,omitempty"`
	Curve          string `json:"curve"`
	ECDSABinding   bool   `json:"ecdsa_binding"`
	Cipher         string `json:"cipher"`
	PolicyType     string `json:"policy_type"`
	PolicyLocator  string `json:"policy_locator,omitempty"`
	PolicyLength   int    `json:"policy_length"`
	Policy         string `json:"policy,omitempty"`
	Binding        string `json:"binding"`
	EphemeralKey   string `json:"ephemeral_key"`
	HeaderLength   int    `json:"header_length"`
	IV             string `json:"iv"`
	CiphertextSize int    `json:"ciphertext_size"`
	Signed         bool   `json:"signed"`
	SignatureCurve string `json:"signature_curve,omitempty"`
}

func describe(env *nanotdf.Envelope) envelopeInfo {
	h := env.Header
	info := envelopeInfo{
		Magic:          string(h.MagicVersion[:]),
		KAS:            h.KAS.String(),
		Curve:          h.ECCMode.String(),
		ECDSABinding:   h.UseECDSABinding,
		Cipher:         h.SymmetricCipher.String(),
		PolicyType:     h.Policy.Type.String(),
		Binding:        hex.EncodeToString(h.Policy.Binding),
		EphemeralKey:   hex.EncodeToString(h.EphemeralPublicKey),
		HeaderLength:   len(env.HeaderBytes()),
		IV:             hex.EncodeToString(env.Payload.IV),
		CiphertextSize: len(env.Payload.Ciphertext()),
		Signed:         h.HasSignature,
	}
	if len(h.KAS.Identifier) > 0 {
		info.KASKeyID = hex.EncodeToString(h.KAS.Identifier)
	}
	switch h.Policy.Type {
	case nanotdf.PolicyTypeRemote:
		info.PolicyLocator = h.Policy.Remote.String()
	case nanotdf.PolicyTypeEmbeddedPlaintext:
		info.PolicyLength = len(h.Policy.Content)
		info.Policy = string(h.Policy.Content)
	default:
		info.PolicyLength = len(h.Policy.Content)
	}
	if h.HasSignature {
		info.SignatureCurve = h.SignatureECCMode.String()
	}
	return info
}

func newInspectCmd(_ *app) *cobra.Command {
	var (
		in     string
		b64    bool
		legacy bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the header of a NanoTDF envelope without decrypting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readEnvelope(cmd, in, b64)
			if err != nil {
				return err
			}
			env, err := nanotdf.ParseEnvelope(data, legacy)
			if err != nil {
				return err
			}
			info := describe(env)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return printInfo(cmd.OutOrStdout(), info)
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "-", "envelope input file")
	cmd.Flags().BoolVar(&b64, "base64", false, "read base64 text instead of binary")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "parse legacy envelopes with 3-byte IVs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printInfo(w io.Writer, info envelopeInfo) error {
	rows := [][2]string{
		{"Magic", info.Magic},
		{"KAS", info.KAS},
		{"KAS key id", info.KASKeyID},
		{"Curve", info.Curve},
		{"ECDSA binding", fmt.Sprint(info.ECDSABinding)},
		{"Cipher", info.Cipher},
		{"Policy type", info.PolicyType},
		{"Policy locator", info.PolicyLocator},
		{"Policy", info.Policy},
		{"Binding", info.Binding},
		{"Ephemeral key", info.EphemeralKey},
		{"Header length", fmt.Sprint(info.HeaderLength)},
		{"IV", info.IV},
		{"Ciphertext size", fmt.Sprint(info.CiphertextSize)},
		{"Signed", fmt.Sprint(info.Signed)},
		{"Signature curve", info.SignatureCurve},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-16s %s\n", r[0]+":", r[1]); err != nil {
			return err
		}
	}
	return nil
}
