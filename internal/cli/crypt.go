package cli

import (
	"encoding/base64"
	"io"

	"github.com/spf13/cobra"

	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
	"github.com/opentdf/tests-sub001/pkg/opentdf"
)

type cryptFlags struct {
	kasURL  string
	in      string
	out     string
	base64  bool
	legacy  bool
	attrs   []string
	dissems []string
}

func newEncryptCmd(a *app) *cobra.Command {
	var f cryptFlags

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt data into a NanoTDF envelope",
		Example: `  nanotdf encrypt --kas https://kas.example.com \
    --attr https://example.com/attr/classification/value/secret \
    --in report.txt --out report.ntdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kasURL, err := a.kasURL(f.kasURL)
			if err != nil {
				return err
			}
			opts, err := a.encryptOptions(f.legacy)
			if err != nil {
				return err
			}
			client, err := a.client(opts...)
			if err != nil {
				return err
			}

			src, err := openInput(cmd, f.in)
			if err != nil {
				return err
			}
			defer src.Close()

			out, err := client.EncryptReader(cmd.Context(), f.attrs, f.dissems, src, kasURL)
			if err != nil {
				return err
			}
			if f.base64 {
				out = []byte(base64.StdEncoding.EncodeToString(out) + "\n")
			}
			a.logger.Info().Str("kas_url", kasURL).Int("bytes", len(out)).Msg("envelope written")
			return writeOutput(cmd, f.out, out)
		},
	}

	cmd.Flags().StringVar(&f.kasURL, "kas", "", "KAS URL (overrides kas.url)")
	cmd.Flags().StringVarP(&f.in, "in", "i", "-", "plaintext input file")
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", "envelope output file")
	cmd.Flags().BoolVar(&f.base64, "base64", false, "write base64 text instead of binary")
	cmd.Flags().BoolVar(&f.legacy, "legacy", false, "write legacy envelopes with 3-byte IVs")
	cmd.Flags().StringSliceVar(&f.attrs, "attr", nil, "data attribute URI (repeatable)")
	cmd.Flags().StringSliceVar(&f.dissems, "dissem", nil, "entity allowed to access the data (repeatable)")
	return cmd
}

// encryptOptions maps the encrypt section onto client options.
func (a *app) encryptOptions(legacy bool) ([]opentdf.Option, error) {
	e := a.cfg.Encrypt
	mode, err := e.ECCMode()
	if err != nil {
		return nil, err
	}
	cipher, err := e.Cipher()
	if err != nil {
		return nil, err
	}
	pt, err := e.Policy()
	if err != nil {
		return nil, err
	}

	opts := []opentdf.Option{
		opentdf.WithCurve(mode),
		opentdf.WithCipher(cipher),
		opentdf.WithPolicyType(pt),
	}
	if e.ECDSABinding {
		opts = append(opts, opentdf.WithECDSABinding())
	}
	if e.SignPayload {
		opts = append(opts, opentdf.WithSignature(nil))
	}
	if legacy || e.Legacy {
		opts = append(opts, opentdf.WithLegacyEncrypt())
	}
	return opts, nil
}

func newDecryptCmd(a *app) *cobra.Command {
	var f cryptFlags

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a NanoTDF envelope",
		Long: `Decrypt asks the KAS named in the envelope header for the content key.
With --kas the envelope must name that KAS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			data, err := readEnvelope(cmd, f.in, f.base64)
			if err != nil {
				return err
			}

			var plaintext []byte
			if f.legacy || a.cfg.Encrypt.Legacy {
				plaintext, err = client.DecryptLegacyTDF(cmd.Context(), data, f.kasURL)
			} else {
				plaintext, err = client.Decrypt(cmd.Context(), data, f.kasURL)
			}
			if err != nil {
				return err
			}
			defer crypto.Zero(plaintext)
			return writeOutput(cmd, f.out, plaintext)
		},
	}

	cmd.Flags().StringVar(&f.kasURL, "kas", "", "require the envelope to name this KAS")
	cmd.Flags().StringVarP(&f.in, "in", "i", "-", "envelope input file")
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", "plaintext output file")
	cmd.Flags().BoolVar(&f.base64, "base64", false, "read base64 text instead of binary")
	cmd.Flags().BoolVar(&f.legacy, "legacy", false, "read legacy envelopes with 3-byte IVs")
	return cmd
}

// readEnvelope reads an envelope, decoding base64 when asked.
func readEnvelope(cmd *cobra.Command, name string, b64 bool) ([]byte, error) {
	src, err := openInput(cmd, name)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, nanotdf.MaxPayloadSize*2))
	if err != nil {
		return nil, err
	}
	if b64 {
		return nanotdf.DecodeBase64(string(data))
	}
	return data, nil
}
