package tts

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"taleweaver/internal/domain/story"
)

// ESpeakSynthesizer renders narration with eSpeak/eSpeak-NG into wav.
type ESpeakSynthesizer struct {
	path   string
	config Config
}

func newESpeakSynthesizer(cfg Config) (*ESpeakSynthesizer, error) {
	path, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}
	if err := exec.Command(path, "--version").Run(); err != nil {
		return nil, fmt.Errorf("eSpeak test failed: %w", err)
	}
	return &ESpeakSynthesizer{path: path, config: cfg}, nil
}

func (e *ESpeakSynthesizer) Name() string {
	return EngineTypeESpeak.String()
}

func (e *ESpeakSynthesizer) Synthesize(ctx context.Context, text string) (story.AudioClip, error) {
	if strings.TrimSpace(text) == "" {
		return story.AudioClip{}, ErrEmptyText
	}

	cmd := exec.CommandContext(ctx, e.path, espeakArgs(e.config, text)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return story.AudioClip{}, ctx.Err()
		}
		return story.AudioClip{}, fmt.Errorf("failed to run eSpeak: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return story.AudioClip{}, fmt.Errorf("eSpeak produced no audio")
	}
	return story.AudioClip{Data: stdout.Bytes(), Format: "wav"}, nil
}

func espeakArgs(cfg Config, text string) []string {
	args := []string{"--stdout"}
	if cfg.Voice != "" && cfg.Voice != "default" {
		args = append(args, "-v", cfg.Voice)
	}

	// words per minute, eSpeak default is 175
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}
	args = append(args, "-s", strconv.Itoa(int(math.Round(175*speed))))

	// amplitude 0-200, default 100
	volume := cfg.Volume
	if volume <= 0 {
		volume = 1
	}
	args = append(args, "-a", strconv.Itoa(int(math.Round(100*volume))))

	return append(args, "--", text)
}

// Voices lists the installed eSpeak voices.
func (e *ESpeakSynthesizer) Voices(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, e.path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list eSpeak voices: %w", err)
	}
	return parseESpeakVoices(string(output)), nil
}

func parseESpeakVoices(output string) []string {
	lines := strings.Split(output, "\n")
	voices := make([]string, 0)

	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Pty Language Age/Gender VoiceName File Other Languages
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			voices = append(voices, fields[3])
		}
	}

	return voices
}
