// Package config provides SDK-wide configuration loaded via viper:
// defaults, an optional config file, and TDX_*-prefixed environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds settings shared across the CLI and the orchestrator.
type Config struct {
	// CacheDir is the root of the fetch/git content-addressed cache.
	CacheDir string `mapstructure:"cache_dir"`

	// Assembler is the path or name of the mkosi binary invoked by the
	// orchestrator's build verb.
	Assembler string `mapstructure:"assembler"`

	// GitTimeout is loaded from TDX_GIT_TIMEOUT. pkg/fetch does not read
	// it: git mirror syncs and clones run without a timeout.
	GitTimeout time.Duration `mapstructure:"git_timeout"`

	// HTTPInsecure is loaded from TDX_HTTP_INSECURE. pkg/fetch does not
	// read it: the fetcher's HTTP client always verifies TLS
	// certificates.
	HTTPInsecure bool `mapstructure:"http_insecure"`

	Debug bool `mapstructure:"debug"`
}

// Load loads configuration from an optional file plus TDX_*-prefixed
// environment variables, falling back to the SDK's documented defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("cache_dir", filepath.Join(homeDir(), ".cache", "tdx"))
	v.SetDefault("assembler", "mkosi")
	v.SetDefault("git_timeout", 5*time.Minute)
	v.SetDefault("http_insecure", false)
	v.SetDefault("debug", false)

	v.SetEnvPrefix("TDX")
	v.AutomaticEnv()

	v.BindEnv("cache_dir", "TDX_CACHE_DIR")
	v.BindEnv("assembler", "TDX_ASSEMBLER")
	v.BindEnv("git_timeout", "TDX_GIT_TIMEOUT")
	v.BindEnv("http_insecure", "TDX_HTTP_INSECURE")
	v.BindEnv("debug", "TDX_DEBUG")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".tdx")
		v.SetConfigType("yaml")
		v.AddConfigPath(homeDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return home
}
