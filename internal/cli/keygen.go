package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

func newKeygenCmd(_ *app) *cobra.Command {
	var (
		curve  string
		out    string
		pubOut string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a KAS key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := crypto.ModeForName(curve)
			if err != nil {
				return err
			}
			key, err := crypto.GenerateECCKeyPair(mode)
			if err != nil {
				return err
			}

			privPEM, err := crypto.MarshalPrivateKeyPEM(key)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, out, privPEM); err != nil {
				return err
			}

			if pubOut != "" {
				pubPEM, err := crypto.MarshalPublicKeyPEM(&key.PublicKey)
				if err != nil {
					return err
				}
				return os.WriteFile(pubOut, []byte(pubPEM), 0o644)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&curve, "curve", "secp256r1", "curve (secp256r1, secp384r1, secp521r1)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "private key output file")
	cmd.Flags().StringVar(&pubOut, "pub-out", "", "public key output file")
	return cmd
}
