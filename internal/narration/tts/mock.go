package tts

import (
	"context"
	"strings"
	"sync"

	"taleweaver/internal/domain/story"
)

// MockSynthesizer returns a fixed clip and records what it was asked to say.
type MockSynthesizer struct {
	mu    sync.Mutex
	texts []string

	// Clip is returned by Synthesize.
	Clip story.AudioClip
	// Err, when set, is returned instead of Clip.
	Err error
	// Gate, when set, blocks Synthesize until it is closed or ctx is done.
	Gate chan struct{}
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{Clip: story.AudioClip{Data: []byte("mock-narration"), Format: "mp3"}}
}

func (m *MockSynthesizer) Name() string {
	return EngineTypeMock.String()
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string) (story.AudioClip, error) {
	if strings.TrimSpace(text) == "" {
		return story.AudioClip{}, ErrEmptyText
	}
	m.mu.Lock()
	m.texts = append(m.texts, text)
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-ctx.Done():
			return story.AudioClip{}, ctx.Err()
		case <-gate:
		}
	}
	if m.Err != nil {
		return story.AudioClip{}, m.Err
	}
	return m.Clip, nil
}

// Texts returns every text passed to Synthesize.
func (m *MockSynthesizer) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}
