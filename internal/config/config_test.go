package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taleweaver/internal/highlight"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Pipeline.URL)
	assert.Equal(t, "/events", cfg.Pipeline.EventsPath)
	assert.Equal(t, 1500*time.Millisecond, cfg.Effects.FadeIn)
	assert.Equal(t, 7*24*time.Hour, cfg.Effects.CacheMaxAge)
	assert.True(t, cfg.Highlight.Enabled)
	assert.Equal(t, 50*time.Millisecond, cfg.Highlight.PollInterval())
	assert.Equal(t, "auto", cfg.Narration.Fallback)
	assert.True(t, cfg.Session.AutoStart)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "taleweaver.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
pipeline:
  url: https://stories.test
effects:
  fade_in: 3s
  cue_delay: 100ms
highlight:
  poll_hz: 40
session:
  auto_start: false
`), 0o644))
	t.Setenv("TALEWEAVER_NARRATION_FALLBACK", "espeak")

	cfg, err := Load(New(), file)
	require.NoError(t, err)

	assert.Equal(t, "https://stories.test", cfg.Pipeline.URL)
	assert.Equal(t, 3*time.Second, cfg.Effects.FadeIn)
	assert.Equal(t, 100*time.Millisecond, cfg.Effects.CueDelay)
	assert.Equal(t, 25*time.Millisecond, cfg.Highlight.PollInterval())
	assert.False(t, cfg.Session.AutoStart)
	assert.Equal(t, "espeak", cfg.Narration.Fallback)
	// Untouched keys keep their defaults.
	assert.Equal(t, 50*time.Millisecond, cfg.Effects.FadeStep)
}

func TestPollInterval(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, Highlight{PollHz: 20}.PollInterval())
	assert.Equal(t, 40*time.Millisecond, Highlight{PollHz: 25}.PollInterval())
	assert.Equal(t, highlight.DefaultInterval, Highlight{}.PollInterval())
	assert.Equal(t, highlight.DefaultInterval, Highlight{PollHz: -5}.PollInterval())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	logger := logrus.New()

	require.NoError(t, SetupLogging(logger, Log{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	assert.Error(t, SetupLogging(logger, Log{Level: "loud"}))
	assert.Error(t, SetupLogging(logger, Log{Level: "info", Format: "xml"}))
}
