package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// CLIConfig is read from ~/.uniportal/config.yaml and UNIPORTAL_* variables.
type CLIConfig struct {
	APIURL string `mapstructure:"api_url"`
	WSURL  string `mapstructure:"ws_url"`
	// Token overrides the keyring, mostly for scripts and CI.
	Token string `mapstructure:"token"`
	// FeedCapacity is how many notifications `watch` keeps on screen.
	FeedCapacity          int    `mapstructure:"feed_capacity"`
	ProtectedSuperAdminID string `mapstructure:"protected_super_admin_id"`
	PageSize              int    `mapstructure:"page_size"`
}

// DefaultConfigPath returns ~/.uniportal/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".uniportal", "config.yaml")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("ws_url", "")
	v.SetDefault("token", "")
	v.SetDefault("feed_capacity", 20)
	v.SetDefault("protected_super_admin_id", "")
	v.SetDefault("page_size", 20)

	v.SetEnvPrefix("UNIPORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadCLIConfig reads path if it exists. A missing file is not an error.
func LoadCLIConfig(v *viper.Viper, path string) (*CLIConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg CLIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.APIURL)
	}
	if cfg.FeedCapacity < 1 {
		cfg.FeedCapacity = 20
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 20
	}
	return &cfg, nil
}

// deriveWSURL maps http(s)://host to ws(s)://host/ws.
func deriveWSURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://") + "/ws"
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://") + "/ws"
	default:
		return apiURL + "/ws"
	}
}
