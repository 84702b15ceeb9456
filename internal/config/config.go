package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/drixzor/drode/internal/auth"
	"github.com/drixzor/drode/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. DRODE_SERVER_LISTEN.
const EnvPrefix = "DRODE"

// Config is the daemon configuration. It is read from an optional TOML file
// and overridden by DRODE_* environment variables.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       logger.Config   `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Process   ProcessConfig   `mapstructure:"process"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	Ports     PortsConfig     `mapstructure:"ports"`
}

type DatabaseConfig struct {
	// Path is a file path or sqlite:// DSN; empty means <data_dir>/drode.db.
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`

	// TokenFile receives the API token of each launch; empty means
	// <data_dir>/api-token.
	TokenFile string `mapstructure:"token_file"`
}

type ProcessConfig struct {
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	TranscriptDir string        `mapstructure:"transcript_dir"`
}

type AssistantConfig struct {
	Binary string `mapstructure:"binary"`
}

// OAuthConfig only moves the loopback callback; client ids are read from
// the environment when a flow starts.
type OAuthConfig struct {
	CallbackAddr string        `mapstructure:"callback_addr"`
	RedirectURI  string        `mapstructure:"redirect_uri"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ActivityConfig struct {
	// Retention of zero disables purging.
	Retention     time.Duration `mapstructure:"retention"`
	PurgeSchedule string        `mapstructure:"purge_schedule"`
}

type PortsConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// DefaultDataDir is the per-user directory holding the database and logs.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "drode")
	}
	return ".drode"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("database.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("server.listen", "127.0.0.1:17390")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.token_file", "")
	v.SetDefault("process.grace_period", 100*time.Millisecond)
	v.SetDefault("process.transcript_dir", "")
	v.SetDefault("assistant.binary", "claude")
	v.SetDefault("oauth.callback_addr", "127.0.0.1:17391")
	v.SetDefault("oauth.redirect_uri", "http://localhost:17391/callback")
	v.SetDefault("oauth.timeout", 300*time.Second)
	v.SetDefault("activity.retention", 720*time.Hour)
	v.SetDefault("activity.purge_schedule", "@daily")
	v.SetDefault("ports.grace_period", 500*time.Millisecond)
}

// Load reads path (may be empty) and the environment into a validated Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "drode.db")
	}
	if cfg.Server.TokenFile == "" {
		cfg.Server.TokenFile = filepath.Join(cfg.DataDir, auth.TokenFileName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("server.listen %q: %w", c.Server.Listen, err)
	}
	if _, _, err := net.SplitHostPort(c.OAuth.CallbackAddr); err != nil {
		return fmt.Errorf("oauth.callback_addr %q: %w", c.OAuth.CallbackAddr, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "color":
	default:
		return fmt.Errorf("log.format must be text, json or color, got %q", c.Log.Format)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Process.GracePeriod <= 0 {
		return errors.New("process.grace_period must be positive")
	}
	if c.OAuth.Timeout <= 0 {
		return errors.New("oauth.timeout must be positive")
	}
	if c.Activity.Retention < 0 {
		return errors.New("activity.retention must not be negative")
	}
	if strings.TrimSpace(c.Assistant.Binary) == "" {
		return errors.New("assistant.binary must not be empty")
	}
	return nil
}

// Transcripts returns the transcript writer settings, sharing the log rotation.
func (c *Config) Transcripts() logger.Transcripts {
	return logger.Transcripts{Dir: c.Process.TranscriptDir, Rotation: c.Log.Rotation}
}
