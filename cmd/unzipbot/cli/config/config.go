package config

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/meigma/unzipbot"
	"github.com/meigma/unzipbot/internal/bot"
)

// Config represents the unzipbot configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	DataDir  string        `mapstructure:"data-dir"`
	CacheDir string        `mapstructure:"cache-dir"`
	Progress string        `mapstructure:"progress"`
	Bot      BotConfig     `mapstructure:"bot"`
	Limits   LimitsConfig  `mapstructure:"limits"`
	Extract  ExtractConfig `mapstructure:"extract"`
	Prune    PruneConfig   `mapstructure:"prune"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

// BotConfig holds chat transport settings.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	AdminID     int64         `mapstructure:"admin-id"`
	PollTimeout time.Duration `mapstructure:"poll-timeout"`
	MaxSendSize string        `mapstructure:"max-send-size"`
	Cleanup     bool          `mapstructure:"cleanup"`
}

// LimitsConfig holds archive safety limits. Sizes accept units (100MiB).
type LimitsConfig struct {
	MaxFiles     int    `mapstructure:"max-files"`
	MaxTotalSize string `mapstructure:"max-total-size"`
	MaxFileSize  string `mapstructure:"max-file-size"`
}

// ExtractConfig holds pipeline behavior.
type ExtractConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Rollback bool          `mapstructure:"rollback"`
}

// PruneConfig holds workspace retention. Interval enables periodic pruning
// while serving.
type PruneConfig struct {
	MaxAge   time.Duration `mapstructure:"max-age"`
	MaxSize  string        `mapstructure:"max-size"`
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsConfig holds the Prometheus listener. Empty disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Default returns the built-in configuration. DataDir and CacheDir are left
// empty and resolved by Load.
func Default() Config {
	limits := unzipbot.DefaultLimits()
	return Config{
		Progress: "auto",
		Bot: BotConfig{
			PollTimeout: 10 * time.Second,
			MaxSendSize: humanize.IBytes(bot.DefaultMaxSendSize),
		},
		Limits: LimitsConfig{
			MaxFiles:     limits.MaxFiles,
			MaxTotalSize: humanize.IBytes(uint64(limits.MaxTotalSize)),
			MaxFileSize:  humanize.IBytes(uint64(limits.MaxFileSize)),
		},
		Extract: ExtractConfig{
			Timeout:  5 * time.Minute,
			Rollback: true,
		},
		Prune: PruneConfig{
			MaxAge: 24 * time.Hour,
		},
	}
}

// SetDefaults registers every key of Default on v so that environment
// variables bind during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data-dir", d.DataDir)
	v.SetDefault("cache-dir", d.CacheDir)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("bot.token", d.Bot.Token)
	v.SetDefault("bot.admin-id", d.Bot.AdminID)
	v.SetDefault("bot.poll-timeout", d.Bot.PollTimeout)
	v.SetDefault("bot.max-send-size", d.Bot.MaxSendSize)
	v.SetDefault("bot.cleanup", d.Bot.Cleanup)
	v.SetDefault("limits.max-files", d.Limits.MaxFiles)
	v.SetDefault("limits.max-total-size", d.Limits.MaxTotalSize)
	v.SetDefault("limits.max-file-size", d.Limits.MaxFileSize)
	v.SetDefault("extract.timeout", d.Extract.Timeout)
	v.SetDefault("extract.rollback", d.Extract.Rollback)
	v.SetDefault("prune.max-age", d.Prune.MaxAge)
	v.SetDefault("prune.max-size", d.Prune.MaxSize)
	v.SetDefault("prune.interval", d.Prune.Interval)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// Load merges v over Default and resolves the data and cache directories.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DataDir == "" {
		dir, err := DataDir()
		if err != nil {
			return cfg, err
		}
		cfg.DataDir = dir
	}
	if cfg.CacheDir == "" {
		dir, err := CacheDir()
		if err != nil {
			return cfg, err
		}
		cfg.CacheDir = dir
	}
	return cfg, nil
}

// SafetyLimits parses the configured limits.
func (c Config) SafetyLimits() (unzipbot.SafetyLimits, error) {
	total, err := ParseSize(c.Limits.MaxTotalSize)
	if err != nil {
		return unzipbot.SafetyLimits{}, fmt.Errorf("limits.max-total-size: %w", err)
	}
	file, err := ParseSize(c.Limits.MaxFileSize)
	if err != nil {
		return unzipbot.SafetyLimits{}, fmt.Errorf("limits.max-file-size: %w", err)
	}
	if c.Limits.MaxFiles < 0 {
		return unzipbot.SafetyLimits{}, fmt.Errorf("limits.max-files: must not be negative")
	}
	return unzipbot.SafetyLimits{
		MaxFiles:     c.Limits.MaxFiles,
		MaxTotalSize: total,
		MaxFileSize:  file,
	}, nil
}

// ExtractDir holds per-owner request directories.
func (c Config) ExtractDir() string { return filepath.Join(c.DataDir, "extracted") }

// SettingsPath is the bot's editable settings file.
func (c Config) SettingsPath() string { return filepath.Join(c.DataDir, "settings.yaml") }

// DBPath is the user and history database.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, "unzipbot.bolt") }

// TempDir holds downloaded archives while they are processed.
func (c Config) TempDir() string { return filepath.Join(c.CacheDir, "downloads") }

// EnvKeyReplacer maps nested keys like "bot.admin-id" to BOT_ADMIN_ID.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

// ParseSize parses a human size such as "100MiB" or "20MB". Empty means zero.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(n), nil
}
