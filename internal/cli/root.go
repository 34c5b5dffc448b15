// Package cli implements the nanotdf command.
package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/opentdf/tests-sub001/internal/config"
	"github.com/opentdf/tests-sub001/internal/logging"
	"github.com/opentdf/tests-sub001/internal/metrics"
	"github.com/opentdf/tests-sub001/pkg/kas"
	"github.com/opentdf/tests-sub001/pkg/opentdf"
)

// app carries state shared by subcommands once the root has run.
type app struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "nanotdf",
		Short: "NanoTDF envelope tool",
		Long: `nanotdf encrypts and decrypts NanoTDF envelopes against a key access
service (KAS), inspects envelopes offline and runs a reference KAS.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "",
		"config file (default is ./nanotdf.yaml or $HOME/.config/nanotdf/nanotdf.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "",
		"log format (text, json)")

	root.AddCommand(
		newEncryptCmd(a),
		newDecryptCmd(a),
		newInspectCmd(a),
		newServeCmd(a),
		newKeygenCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, logging.WithOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	metrics.Enable()
	return nil
}

// tokenSource builds the bearer token source from the auth section.
func (a *app) tokenSource() (kas.TokenSource, error) {
	token, err := a.cfg.Auth.ResolveToken()
	if err != nil {
		return nil, err
	}
	switch {
	case token != "":
		return kas.StaticToken(token), nil
	case a.cfg.Auth.HMACSecret != "":
		tokens := kas.HMACTokens{Secret: []byte(a.cfg.Auth.HMACSecret)}
		return tokens.Source(a.cfg.Auth.Subject), nil
	default:
		return nil, nil
	}
}

func (a *app) kasClient() (*kas.Client, error) {
	k := a.cfg.KAS
	opts := []kas.Option{
		kas.WithHTTPClient(&http.Client{Timeout: k.Timeout}),
		kas.WithLogger(a.logger),
		kas.WithMaxRetries(k.MaxRetries),
		kas.WithBackoff(k.BackoffInitial, k.BackoffMax),
		kas.WithClientVersion("nanotdf-cli/" + Version),
	}
	if k.RequestsPerSecond > 0 {
		opts = append(opts, kas.WithRateLimit(k.RequestsPerSecond, k.Burst))
	}
	ts, err := a.tokenSource()
	if err != nil {
		return nil, err
	}
	if ts != nil {
		opts = append(opts, kas.WithTokenSource(ts))
	}
	return kas.NewClient(opts...), nil
}

// client builds the orchestrator from config plus any extra options.
func (a *app) client(extra ...opentdf.Option) (*opentdf.Client, error) {
	k, err := a.kasClient()
	if err != nil {
		return nil, err
	}
	return opentdf.NewClient(append([]opentdf.Option{
		opentdf.WithKASClient(k),
		opentdf.WithLogger(a.logger),
	}, extra...)...)
}

func (a *app) kasURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.cfg.KAS.URL != "" {
		return a.cfg.KAS.URL, nil
	}
	return "", fmt.Errorf("no KAS URL: pass --kas or set kas.url")
}

// openInput returns the named file, or stdin for "" and "-".
func openInput(cmd *cobra.Command, name string) (io.ReadCloser, error) {
	if name == "" || name == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(name)
}

// writeOutput writes data to the named file, or stdout for "" and "-".
func writeOutput(cmd *cobra.Command, name string, data []byte) error {
	if name == "" || name == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(name, data, 0o600)
}
