package session

import (
	"fmt"

	"github.com/google/uuid"

	"taleweaver/internal/domain/story"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/playback"
)

// Phase is the coarse lifecycle of a session's current generation.
type Phase int

const (
	PhaseGenerating Phase = iota
	PhaseBlocked
	PhaseReady
	PhasePlaying
	PhaseEnded
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseGenerating:
		return "generating"
	case PhaseBlocked:
		return "blocked"
	case PhaseReady:
		return "ready"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	case PhaseCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Observer is notified of session changes on the actor goroutine. It must
// not block.
type Observer interface {
	StageChanged(st pipeline.StageState)
	ProgressChanged(p pipeline.Progress)
	Warning(msg string)
	Blocked(msg string)
	SceneReady(scene story.Scene)
	EnteredPlayback(scene story.Scene)
	SceneStarted(epoch uint64, via playback.Trigger)
	SceneEnded(epoch uint64)
	WordHighlighted(index int, token story.TimedToken)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) StageChanged(pipeline.StageState)      {}
func (NopObserver) ProgressChanged(pipeline.Progress)     {}
func (NopObserver) Warning(string)                        {}
func (NopObserver) Blocked(string)                        {}
func (NopObserver) SceneReady(story.Scene)                {}
func (NopObserver) EnteredPlayback(story.Scene)           {}
func (NopObserver) SceneStarted(uint64, playback.Trigger) {}
func (NopObserver) SceneEnded(uint64)                     {}
func (NopObserver) WordHighlighted(int, story.TimedToken) {}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Session       uuid.UUID                `json:"session"`
	Phase         Phase                    `json:"phase"`
	Epoch         uint64                   `json:"epoch"`
	Playback      playback.State           `json:"playback"`
	SceneID       string                   `json:"scene_id,omitempty"`
	Title         string                   `json:"title,omitempty"`
	Stages        []pipeline.StageState    `json:"stages"`
	Progress      pipeline.Progress        `json:"progress"`
	Completed     bool                     `json:"completed"`
	Failure       string                   `json:"failure,omitempty"`
	Regenerating  []pipeline.ResourceState `json:"regenerating"`
	Highlight     int                      `json:"highlight"`
	Word          string                   `json:"word,omitempty"`
	ActiveEffects int                      `json:"active_effects"`
	TextOnly      bool                     `json:"text_only"`
	TextDisplay   bool                     `json:"text_display"`
	Paused        bool                     `json:"paused"`
	Warnings      []string                 `json:"warnings,omitempty"`
}
