// Package config loads ledger settings from a TOML file, a .env file and
// the environment.
//
// Precedence, highest first:
//
//	LEDGER_* environment variables (TAURI_APP_CLOUD_API_URL for api_url)
//	.env in the working directory
//	ledger.toml
//	built-in defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vertexads/ledger/internal/logging"
)

const (
	// FileName is the config file looked up in the search paths.
	FileName = "ledger.toml"

	// LegacyURLEnv is the variable the desktop shell uses for the remote URL.
	LegacyURLEnv = "TAURI_APP_CLOUD_API_URL"

	envPrefix = "LEDGER"
)

// Config keys.
const (
	KeyAPIURL        = "api_url"
	KeyDBPath        = "db_path"
	KeyBridgeAddr    = "bridge.addr"
	KeyPullInterval  = "daemon.pull_interval"
	KeyShutdownGrace = "daemon.shutdown_grace"
)

// Config is the resolved configuration.
type Config struct {
	APIURL string         `mapstructure:"api_url"`
	DBPath string         `mapstructure:"db_path"`
	Log    logging.Config `mapstructure:"log"`
	Bridge BridgeConfig   `mapstructure:"bridge"`
	Daemon DaemonConfig   `mapstructure:"daemon"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// BridgeConfig configures the local HTTP bridge.
type BridgeConfig struct {
	Addr string `mapstructure:"addr"`
}

// DaemonConfig configures background sync.
type DaemonConfig struct {
	// PullInterval between periodic pulls; 0 disables them.
	PullInterval time.Duration `mapstructure:"pull_interval"`
	// ShutdownGrace bounds how long exit waits for the final push.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIURL, "")
	v.SetDefault(KeyDBPath, "vertexads.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault(KeyBridgeAddr, "127.0.0.1:7420")
	v.SetDefault(KeyPullInterval, "0s")
	v.SetDefault(KeyShutdownGrace, "5s")
}

// Load resolves the configuration.
//
// If path is empty, ledger.toml is searched in the working directory and
// the user config directory. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyAPIURL, envPrefix+"_API_URL", LegacyURLEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", KeyAPIURL, err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "ledger"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.File != "" {
		if _, err := os.Stat(cfg.File); err != nil {
			cfg.File = ""
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil {
			return fmt.Errorf("invalid api_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid api_url %q: scheme must be http or https", c.APIURL)
		}
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Daemon.PullInterval < 0 {
		return fmt.Errorf("daemon.pull_interval must not be negative")
	}
	return nil
}

// defaultFile is the layout written by WriteDefault.
type defaultFile struct {
	APIURL string `toml:"api_url"`
	DBPath string `toml:"db_path"`
	Log    struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"log"`
	Bridge struct {
		Addr string `toml:"addr"`
	} `toml:"bridge"`
	Daemon struct {
		PullInterval  string `toml:"pull_interval"`
		ShutdownGrace string `toml:"shutdown_grace"`
	} `toml:"daemon"`
}

// WriteDefault writes a config file with default values to path. An
// existing file is left untouched and reported with fs.ErrExist.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s: %w", path, fs.ErrExist)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var d defaultFile
	d.DBPath = "vertexads.db"
	d.Log.Level = "info"
	d.Log.Format = "json"
	d.Bridge.Addr = "127.0.0.1:7420"
	d.Daemon.PullInterval = "0s"
	d.Daemon.ShutdownGrace = "5s"

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# ledger configuration\n\n"); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(d); err != nil {
		return fmt.Errorf("failed to encode config file: %w", err)
	}
	return nil
}
