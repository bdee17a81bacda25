// Package events defines the inbound pipeline and audio events, the local
// user intents and the outbound commands a session exchanges.
package events

import (
	"taleweaver/internal/domain/story"
	"taleweaver/internal/pipeline"
)

// Event is the closed set of inputs a session processes. Every variant is a
// concrete struct in this package; switch on the type to handle them.
type Event interface {
	// Name is the wire name of the event.
	Name() string
	isEvent()
}

// Tagged is the envelope carried by every inbound network event. A non-zero
// Generation pins the event to one session epoch.
type Tagged struct {
	Generation uint64 `json:"generation,omitempty"`
}

// Epoch returns the generation the event was produced for, or 0.
func (t Tagged) Epoch() uint64 { return t.Generation }

// Generational is implemented by events that may carry a generation tag.
type Generational interface {
	Epoch() uint64
}

// StageUpdate reports a stage status change.
type StageUpdate struct {
	Tagged
	Stage     pipeline.Stage
	Status    pipeline.Status
	Detail    string
	Retryable *bool
}

// Progress reports overall pipeline progress.
type Progress struct {
	Tagged
	Percent float64
	Message string
	Stage   pipeline.Stage
}

// Ready is the pipeline's terminal event.
type Ready struct {
	Tagged
	Payload story.ReadyPayload
}

// PipelineError reports a stage failure, or a pipeline failure when Stage is empty.
type PipelineError struct {
	Tagged
	Stage     pipeline.Stage
	Message   string
	Retryable bool
}

// RetryComplete reports the outcome of a server-side stage retry.
type RetryComplete struct {
	Tagged
	Stage   pipeline.Stage
	Success bool
	Status  pipeline.Status
	Message string
}

// Regenerated reports the outcome of a sub-resource regeneration.
type Regenerated struct {
	Tagged
	Kind    pipeline.Kind
	Success bool
	Data    pipeline.Resources
	Message string
}

// IntroAudioReady delivers introductory narration.
type IntroAudioReady struct {
	Tagged
	Audio story.AudioClip
}

// SceneAudioReady delivers scene narration and optional word timings.
type SceneAudioReady struct {
	Tagged
	Audio story.AudioClip
	Words []story.TimedToken
	// Synthesized marks narration produced locally by the fallback synthesizer.
	Synthesized bool
}

// AudioError reports that narration synthesis failed.
type AudioError struct {
	Tagged
	Message string
}

func (StageUpdate) Name() string     { return NameStageUpdate }
func (Progress) Name() string        { return NameProgress }
func (Ready) Name() string           { return NameReady }
func (PipelineError) Name() string   { return NameError }
func (RetryComplete) Name() string   { return NameRetryComplete }
func (e Regenerated) Name() string   { return regeneratedName(e.Kind) }
func (IntroAudioReady) Name() string { return NameIntroAudioReady }
func (SceneAudioReady) Name() string { return NameSceneAudioReady }
func (AudioError) Name() string      { return NameAudioError }

func (StageUpdate) isEvent()     {}
func (Progress) isEvent()        {}
func (Ready) isEvent()           {}
func (PipelineError) isEvent()   {}
func (RetryComplete) isEvent()   {}
func (Regenerated) isEvent()     {}
func (IntroAudioReady) isEvent() {}
func (SceneAudioReady) isEvent() {}
func (AudioError) isEvent()      {}

func regeneratedName(kind pipeline.Kind) string {
	switch kind {
	case pipeline.KindArt:
		return NameCoverRegenerated
	case pipeline.KindSynopsis:
		return NameSynopsisRegenerated
	case pipeline.KindEffects:
		return NameEffectsRegenerated
	case pipeline.KindVoices:
		return NameVoicesRegenerated
	}
	return "regenerated"
}
