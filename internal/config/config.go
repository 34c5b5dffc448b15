// Package config loads nanotdf command configuration from a YAML file and
// NANOTDF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

// EnvPrefix prefixes environment overrides, e.g. NANOTDF_KAS_URL.
const EnvPrefix = "NANOTDF"

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete command configuration.
type Config struct {
	KAS     KASConfig     `mapstructure:"kas"`
	Encrypt EncryptConfig `mapstructure:"encrypt"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// KASConfig configures the rewrap client.
type KASConfig struct {
	URL               string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries        uint64        `mapstructure:"max_retries" validate:"lte=10"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial" validate:"gt=0"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" validate:"gtefield=BackoffInitial"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=1"`
}

// EncryptConfig selects the envelope layout.
type EncryptConfig struct {
	Curve        string `mapstructure:"curve" validate:"oneof=secp256r1 secp384r1 secp521r1"`
	TagBits      int    `mapstructure:"tag_bits" validate:"oneof=64 96 104 112 120 128"`
	PolicyType   string `mapstructure:"policy_type" validate:"oneof=remote embedded-plaintext embedded-encrypted"`
	ECDSABinding bool   `mapstructure:"ecdsa_binding"`
	SignPayload  bool   `mapstructure:"sign_payload"`
	Legacy       bool   `mapstructure:"legacy"`
}

// AuthConfig supplies the bearer token. Token wins over TokenFile; with
// neither, HMACSecret and Subject mint a token locally.
type AuthConfig struct {
	Token      string `mapstructure:"token"`
	TokenFile  string `mapstructure:"token_file" validate:"omitempty,file"`
	HMACSecret string `mapstructure:"hmac_secret"`
	Subject    string `mapstructure:"subject" validate:"required_with=HMACSecret"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ServerConfig configures the reference KAS.
type ServerConfig struct {
	Addr         string              `mapstructure:"addr" validate:"required"`
	KeyFiles     []string            `mapstructure:"key_files" validate:"dive,file"`
	Curves       []string            `mapstructure:"curves" validate:"dive,oneof=secp256r1 secp384r1 secp521r1"`
	KeyID        string              `mapstructure:"key_id"`
	Entitlements map[string][]string `mapstructure:"entitlements"`
	AllowRemote  bool                `mapstructure:"allow_remote"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kas.url", "")
	v.SetDefault("kas.timeout", 30*time.Second)
	v.SetDefault("kas.max_retries", 3)
	v.SetDefault("kas.backoff_initial", 100*time.Millisecond)
	v.SetDefault("kas.backoff_max", 2*time.Second)
	v.SetDefault("kas.requests_per_second", 0)
	v.SetDefault("kas.burst", 1)

	v.SetDefault("encrypt.curve", "secp256r1")
	v.SetDefault("encrypt.tag_bits", 96)
	v.SetDefault("encrypt.policy_type", "embedded-encrypted")
	v.SetDefault("encrypt.ecdsa_binding", false)
	v.SetDefault("encrypt.sign_payload", false)
	v.SetDefault("encrypt.legacy", false)

	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.subject", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.key_files", []string{})
	v.SetDefault("server.curves", []string{"secp256r1"})
	v.SetDefault("server.key_id", "")
	v.SetDefault("server.allow_remote", false)
}

// Load reads configuration. An explicit path must exist; with no path,
// nanotdf.yaml is looked up in the working directory and
// $HOME/.config/nanotdf and is optional. Environment variables override
// both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("nanotdf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "nanotdf"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config parse error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ECCMode returns the configured ephemeral curve.
func (e EncryptConfig) ECCMode() (crypto.ECCMode, error) {
	return crypto.ModeForName(e.Curve)
}

// Cipher returns the configured payload cipher.
func (e EncryptConfig) Cipher() (nanotdf.SymmetricCipher, error) {
	return nanotdf.CipherForTagBits(e.TagBits)
}

// Policy returns the configured policy type.
func (e EncryptConfig) Policy() (nanotdf.PolicyType, error) {
	return nanotdf.PolicyTypeForName(e.PolicyType)
}

// ResolveToken returns the static bearer token, reading TokenFile if set.
// An empty result means no static token is configured.
func (a AuthConfig) ResolveToken() (string, error) {
	if a.Token != "" {
		return a.Token, nil
	}
	if a.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(a.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
