// Package config loads logpile settings from defaults, an optional YAML
// file and LOGPILE_ environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/sanitize"
)

// EnvPrefix prefixes every environment override, e.g. LOGPILE_STORE_DATA_DIR.
const EnvPrefix = "LOGPILE"

// Config is the complete logpile configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Console     ConsoleConfig     `mapstructure:"console"`
	Store       StoreConfig       `mapstructure:"store"`
	Server      ServerConfig      `mapstructure:"server"`
	Cluster     ClusterConfig     `mapstructure:"cluster"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// LogConfig controls the JSON lines file medium.
type LogConfig struct {
	// File is the catch-all file; empty disables it.
	File        string `mapstructure:"file"`
	ErrorFile   string `mapstructure:"error_file"`
	WarningFile string `mapstructure:"warning_file"`
	VerboseFile string `mapstructure:"verbose_file"`
	// Level is the least severe level written.
	Level string `mapstructure:"level"`
	// Depth is the sanitizer depth for every medium.
	Depth int `mapstructure:"depth"`
}

type ConsoleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// StoreConfig controls the segment store medium.
type StoreConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DataDir    string `mapstructure:"data_dir"`
	Retention  string `mapstructure:"retention"`
	MaxTableMB int    `mapstructure:"max_table_mb"`
	Encrypt    bool   `mapstructure:"encrypt"`
	// KeyFile defaults to master.key inside DataDir.
	KeyFile string `mapstructure:"key_file"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// TokenHash is a bcrypt hash of the bearer token; empty disables auth.
	TokenHash string `mapstructure:"token_hash"`
}

// ClusterConfig points at other logpile nodes.
type ClusterConfig struct {
	// Nodes are read through GET /api/entries instead of local storage.
	Nodes []string `mapstructure:"nodes"`
	// ShipTo receives every entry through POST /api/ingest.
	ShipTo string `mapstructure:"ship_to"`
	Token  string `mapstructure:"token"`
}

type DiagnosticsConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			File:  filepath.Join("logs", "logpile.log"),
			Level: string(model.LevelDebug),
			Depth: sanitize.MaxDepth,
		},
		Console: ConsoleConfig{
			Enabled: true,
			Level:   string(model.LevelDebug),
		},
		Store: StoreConfig{
			DataDir:    "data",
			Retention:  "168h",
			MaxTableMB: 64,
		},
		Server: ServerConfig{
			Addr: ":8088",
		},
		Diagnostics: DiagnosticsConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers Default() with v so every key is known to env lookups.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.error_file", defaults.Log.ErrorFile)
	v.SetDefault("log.warning_file", defaults.Log.WarningFile)
	v.SetDefault("log.verbose_file", defaults.Log.VerboseFile)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.depth", defaults.Log.Depth)

	v.SetDefault("console.enabled", defaults.Console.Enabled)
	v.SetDefault("console.level", defaults.Console.Level)

	v.SetDefault("store.enabled", defaults.Store.Enabled)
	v.SetDefault("store.data_dir", defaults.Store.DataDir)
	v.SetDefault("store.retention", defaults.Store.Retention)
	v.SetDefault("store.max_table_mb", defaults.Store.MaxTableMB)
	v.SetDefault("store.encrypt", defaults.Store.Encrypt)
	v.SetDefault("store.key_file", defaults.Store.KeyFile)

	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.token_hash", defaults.Server.TokenHash)

	v.SetDefault("cluster.nodes", defaults.Cluster.Nodes)
	v.SetDefault("cluster.ship_to", defaults.Cluster.ShipTo)
	v.SetDefault("cluster.token", defaults.Cluster.Token)

	v.SetDefault("diagnostics.level", defaults.Diagnostics.Level)
}

// Init prepares v: defaults, environment overrides and the config file.
// With an empty cfgFile, logpile.yaml is looked up in the working directory
// and the user config dir; a missing file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// LOGPILE_STORE_DATA_DIR for store.data_dir
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName("logpile")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(Dir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load reads the configuration from v into a Config struct and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Dir returns the user config directory for logpile.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "logpile")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".logpile"
	}
	return filepath.Join(home, ".config", "logpile")
}

// RetentionDuration returns the parsed store retention; zero keeps everything.
func (c *StoreConfig) RetentionDuration() time.Duration {
	if c.Retention == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Retention)
	return d
}

// MaxTableSize is the MemTable flush threshold in bytes.
func (c *StoreConfig) MaxTableSize() int64 {
	return int64(c.MaxTableMB) << 20
}

// KeyPath resolves where the master key lives.
func (c *StoreConfig) KeyPath() string {
	if c.KeyFile != "" {
		return c.KeyFile
	}
	return filepath.Join(c.DataDir, "master.key")
}

// SlogLevel converts the diagnostics level.
func (c *DiagnosticsConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
