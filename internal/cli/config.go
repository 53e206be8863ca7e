package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"folio/internal/apiclient"
)

// Config holds folioctl settings. Values come from flags, FOLIO_* environment
// variables and an optional .folioctl.yaml, in that order of precedence.
type Config struct {
	Server        string        `mapstructure:"server"`
	CookieName    string        `mapstructure:"cookie_name"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TokenFile     string        `mapstructure:"token_file"`
	RedisURL      string        `mapstructure:"redis_url"`
	EventsChannel string        `mapstructure:"events_channel"`
	Verbose       bool          `mapstructure:"verbose"`
}

// LoadConfig reads configuration for the CLI. flags may be nil.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".folioctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/folio")
	}

	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for key, flag := range map[string]string{
			"server":     "server",
			"token_file": "token-file",
			"redis_url":  "redis",
			"verbose":    "verbose",
		} {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.TokenFile == "" {
		path, err := defaultTokenFile()
		if err != nil {
			return nil, err
		}
		cfg.TokenFile = path
	}
	if cfg.Server == "" {
		return nil, errors.New("server URL is required (--server or FOLIO_SERVER)")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("cookie_name", apiclient.DefaultCookieName)
	v.SetDefault("timeout", 20*time.Second)
	v.SetDefault("events_channel", "folio:auth-events")
	// Keys without a real default are still registered so that Unmarshal
	// picks them up from the environment.
	v.SetDefault("token_file", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("verbose", false)
}

func defaultTokenFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "folio", "session"), nil
}

// tokenStore persists the session token between invocations.
type tokenStore struct {
	path string
}

// Load returns the saved token, or "" if none is saved.
func (s tokenStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (s tokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

func (s tokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
