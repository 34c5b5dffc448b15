package cli

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/kas"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		keyFiles []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference key access service",
		Long: `serve runs a KAS that answers public key and rewrap requests.

Keys are read from --key-file (PEM, one per curve). Without key files a key
is generated for each configured curve and lost on exit. When auth.hmac_secret
is set, rewrap requests need an HS256 bearer token signed with it; when
server.entitlements is set, subjects need every attribute of the policy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := a.cfg.Server
			if addr != "" {
				sc.Addr = addr
			}
			if len(keyFiles) > 0 {
				sc.KeyFiles = keyFiles
			}

			keys, err := a.serverKeys(sc.KeyFiles, sc.Curves)
			if err != nil {
				return err
			}

			cfg := &kas.ServerConfig{
				Keys:   keys,
				KeyID:  sc.KeyID,
				Logger: &a.logger,
				Addr:   sc.Addr,
			}
			if secret := a.cfg.Auth.HMACSecret; secret != "" {
				cfg.Verifier = kas.HMACTokens{Secret: []byte(secret)}
			}
			if len(sc.Entitlements) > 0 {
				cfg.Decider = kas.AttributeDecider{Entitlements: sc.Entitlements, AllowRemote: sc.AllowRemote}
			}

			srv, err := kas.NewServer(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringSliceVar(&keyFiles, "key-file", nil, "KAS private key PEM file (repeatable)")
	return cmd
}

func (a *app) serverKeys(files, curves []string) ([]*ecdsa.PrivateKey, error) {
	var keys []*ecdsa.PrivateKey
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		key, err := crypto.ParsePrivateKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		keys = append(keys, key)
	}
	if len(keys) > 0 {
		return keys, nil
	}

	for _, name := range curves {
		mode, err := crypto.ModeForName(name)
		if err != nil {
			return nil, err
		}
		key, err := crypto.GenerateECCKeyPair(mode)
		if err != nil {
			return nil, err
		}
		a.logger.Warn().Stringer("curve", mode).Msg("no key file, using a generated KAS key")
		keys = append(keys, key)
	}
	return keys, nil
}
