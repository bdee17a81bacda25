// Package config loads taleweaver settings through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"taleweaver/internal/highlight"
)

type Pipeline struct {
	URL        string `mapstructure:"url"`
	EventsPath string `mapstructure:"events_path"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Effects struct {
	URL          string        `mapstructure:"url"`
	CacheDir     string        `mapstructure:"cache_dir"`
	CacheMaxAge  time.Duration `mapstructure:"cache_max_age"`
	FadeIn       time.Duration `mapstructure:"fade_in"`
	FadeStep     time.Duration `mapstructure:"fade_step"`
	CueDelay     time.Duration `mapstructure:"cue_delay"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type Highlight struct {
	Enabled bool `mapstructure:"enabled"`
	PollHz  int  `mapstructure:"poll_hz"`
}

// PollInterval converts the poll rate to a ticker interval.
func (h Highlight) PollInterval() time.Duration {
	return highlight.IntervalForRate(float64(h.PollHz))
}

type Narration struct {
	Fallback string  `mapstructure:"fallback"`
	Voice    string  `mapstructure:"voice"`
	Speed    float64 `mapstructure:"speed"`
	Volume   float64 `mapstructure:"volume"`
	CacheDir string  `mapstructure:"cache_dir"`
}

type Session struct {
	AutoStart bool `mapstructure:"auto_start"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full settings tree.
type Config struct {
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Server    Server    `mapstructure:"server"`
	Effects   Effects   `mapstructure:"effects"`
	Highlight Highlight `mapstructure:"highlight"`
	Narration Narration `mapstructure:"narration"`
	Session   Session   `mapstructure:"session"`
	Log       Log       `mapstructure:"log"`
}

func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("pipeline.url", "http://localhost:8080")
	v.SetDefault("pipeline.events_path", "/events")
	v.SetDefault("server.addr", ":7070")

	v.SetDefault("effects.url", "http://localhost:8080/effects")
	v.SetDefault("effects.cache_dir", home+"/.taleweaver/cache/effects")
	v.SetDefault("effects.cache_max_age", 7*24*time.Hour)
	v.SetDefault("effects.fade_in", 1500*time.Millisecond)
	v.SetDefault("effects.fade_step", 50*time.Millisecond)
	v.SetDefault("effects.cue_delay", 250*time.Millisecond)
	v.SetDefault("effects.fetch_timeout", 20*time.Second)

	v.SetDefault("highlight.enabled", true)
	v.SetDefault("highlight.poll_hz", 20)

	v.SetDefault("narration.fallback", "auto") // Auto-select best engine
	v.SetDefault("narration.voice", "")
	v.SetDefault("narration.speed", 1.0)
	v.SetDefault("narration.volume", 0.8)
	v.SetDefault("narration.cache_dir", home+"/.taleweaver/cache/narration")

	v.SetDefault("session.auto_start", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults, the config search path and
// TALEWEAVER_* environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName("taleweaver")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.taleweaver")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TALEWEAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes the settings. A missing
// config file is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// SetupLogging applies the log section to logger.
func SetupLogging(logger *logrus.Logger, cfg Log) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
