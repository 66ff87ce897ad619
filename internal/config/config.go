package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/remindd/internal/otel"
)

// PresentationConfig is the process-wide notification presentation policy.
// It replaces the original implicit handler side effect: the values are
// threaded explicitly into the scheduler and presenters.
type PresentationConfig struct {
	Alert bool `yaml:"alert"`
	Sound bool `yaml:"sound"`
	Badge bool `yaml:"badge"`
}

// TelegramConfig configures the optional Telegram notification presenter.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	Quiet    bool   `yaml:"quiet"`

	// ResyncCron is a 5-field cron expression for the periodic full resync
	// of the notification queue. Empty disables the maintenance resyncer.
	ResyncCron string `yaml:"resync_cron"`

	Presentation PresentationConfig `yaml:"presentation"`
	Channels     ChannelsConfig     `yaml:"channels"`
	OTel         otel.Config        `yaml:"otel"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		LogLevel:   "info",
		ResyncCron: "0 * * * *",
		Presentation: PresentationConfig{
			// Matches the original handler policy: show alert, no sound, no badge.
			Alert: true,
			Sound: false,
			Badge: false,
		},
	}
}

func HomeDir() string {
	if override := os.Getenv("REMINDD_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".remindd")
}

func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create remindd home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "remindd.db")
	}
	cfg.ResyncCron = strings.TrimSpace(cfg.ResyncCron)
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("REMINDD_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("REMINDD_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("REMINDD_RESYNC_CRON"); raw != "" {
		cfg.ResyncCron = raw
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Channels.Telegram.Token = raw
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.Channels.Telegram.ChatID = v
		}
	}
}
