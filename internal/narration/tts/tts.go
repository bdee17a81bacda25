// Package tts synthesizes fallback narration when the pipeline's own
// narration audio is missing or failed to generate.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/sirupsen/logrus"

	"taleweaver/internal/domain/story"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("no text to synthesize")

type Config struct {
	Type     string
	Voice    string
	Speed    float64
	Volume   float64
	Language string
	CacheDir string
}

// Synthesizer renders text into a playable narration clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (story.AudioClip, error)
	Name() string
}

// CacheableSynthesizer exposes its on-disk cache.
type CacheableSynthesizer interface {
	Synthesizer
	CacheStats() (map[string]interface{}, error)
	ClearCache() error
}

type EngineType string

const (
	EngineTypeNone          EngineType = "none"
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeAuto          EngineType = "auto"
)

func (e EngineType) String() string {
	return string(e)
}

// NewSynthesizer builds the synthesizer named by cfg.Type. A nil Synthesizer
// with a nil error means fallback narration is disabled.
func NewSynthesizer(ctx context.Context, cfg Config, log *logrus.Entry) (Synthesizer, error) {
	if cfg.Type == "" {
		cfg.Type = EngineTypeNone.String()
	}
	if cfg.Type == EngineTypeAuto.String() {
		cfg.Type = bestEngineForPlatform().String()
		log.WithField("engine", cfg.Type).Info("Auto-selected narration engine")
	}

	switch cfg.Type {
	case EngineTypeNone.String():
		return nil, nil
	case EngineTypeMock.String():
		return NewMockSynthesizer(), nil
	case EngineTypeESpeak.String():
		return newESpeakSynthesizer(cfg)
	case EngineTypeGoogleClassic.String():
		return newGoogleClassicSynthesizer(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported narration engine: %s", cfg.Type)
	}
}

func bestEngineForPlatform() EngineType {
	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}
	if runtime.GOOS != "windows" {
		if _, err := findESpeakExecutable(); err == nil {
			return EngineTypeESpeak
		}
	}
	return EngineTypeNone
}

// AvailableEngines lists the engines usable on this machine.
func AvailableEngines() []EngineType {
	engines := []EngineType{EngineTypeNone, EngineTypeMock}
	if _, err := findESpeakExecutable(); err == nil {
		engines = append(engines, EngineTypeESpeak)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}
	return engines
}

func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}
