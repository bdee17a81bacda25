package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taleweaver/internal/domain/story"
	"taleweaver/internal/pipeline"
)

// Wire names of inbound events.
const (
	NameStageUpdate         = "stage-update"
	NameProgress            = "progress"
	NameReady               = "ready"
	NameError               = "error"
	NameRetryComplete       = "retry-complete"
	NameCoverRegenerated    = "cover-regenerated"
	NameSynopsisRegenerated = "synopsis-regenerated"
	NameEffectsRegenerated  = "effects-regenerated"
	NameVoicesRegenerated   = "voices-regenerated"
	NameIntroAudioReady     = "intro-audio-ready"
	NameSceneAudioReady     = "scene-audio-ready"
	NameAudioError          = "audio-error"
)

// ErrUnknownEvent is returned by Decode for names outside the protocol.
var ErrUnknownEvent = errors.New("unknown event")

type wireStageUpdate struct {
	Tagged
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

type wireProgress struct {
	Tagged
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
	Stage   string  `json:"stage,omitempty"`
}

type wireClip struct {
	Audio  []byte `json:"audio"`
	Format string `json:"format"`
}

type wireTimings struct {
	Words []story.TimedToken `json:"words"`
}

type wireBundle struct {
	Intro       *wireClip    `json:"intro,omitempty"`
	Scene       *wireClip    `json:"scene,omitempty"`
	WordTimings *wireTimings `json:"wordTimings,omitempty"`
}

type wireReady struct {
	Tagged
	Stages      map[string]string `json:"stages"`
	Content     story.Scene       `json:"content"`
	AudioBundle *wireBundle       `json:"audioBundle,omitempty"`
}

type wireError struct {
	Tagged
	Stage     string `json:"stage,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type wireRetryComplete struct {
	Tagged
	Stage   string `json:"stage"`
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type wireRegenData struct {
	CoverURL string            `json:"coverUrl,omitempty"`
	Synopsis string            `json:"synopsis,omitempty"`
	Effects  []story.EffectCue `json:"effects,omitempty"`
	Voices   []story.Character `json:"voices,omitempty"`
}

type wireRegenerated struct {
	Tagged
	Success bool          `json:"success"`
	Data    wireRegenData `json:"data"`
	Message string        `json:"message,omitempty"`
}

type wireAudio struct {
	Tagged
	wireClip
	WordTimings *wireTimings `json:"wordTimings,omitempty"`
}

type wireAudioError struct {
	Tagged
	Message string `json:"message"`
}

// Decode turns a named wire event into its typed variant.
func Decode(name string, data []byte) (Event, error) {
	switch name {
	case NameStageUpdate:
		var w wireStageUpdate
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		stage, err := pipeline.ParseStage(w.Stage)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		status, err := pipeline.ParseStatus(w.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return StageUpdate{Tagged: w.Tagged, Stage: stage, Status: status, Detail: w.Detail, Retryable: w.Retryable}, nil

	case NameProgress:
		var w wireProgress
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		stage, err := optionalStage(w.Stage)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return Progress{Tagged: w.Tagged, Percent: w.Percent, Message: w.Message, Stage: stage}, nil

	case NameReady:
		var w wireReady
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		payload := story.ReadyPayload{
			Stages:     w.Stages,
			Content:    w.Content,
			ReceivedAt: time.Now(),
		}
		if b := w.AudioBundle; b != nil {
			bundle := &story.AudioBundle{}
			if b.Intro != nil {
				bundle.Intro = story.AudioClip{Data: b.Intro.Audio, Format: b.Intro.Format}
			}
			if b.Scene != nil {
				bundle.Scene = story.AudioClip{Data: b.Scene.Audio, Format: b.Scene.Format}
			}
			if b.WordTimings != nil {
				bundle.Timings = b.WordTimings.Words
			}
			payload.AudioBundle = bundle
		}
		return Ready{Tagged: w.Tagged, Payload: payload}, nil

	case NameError:
		var w wireError
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		stage, err := optionalStage(w.Stage)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return PipelineError{Tagged: w.Tagged, Stage: stage, Message: w.Message, Retryable: w.Retryable}, nil

	case NameRetryComplete:
		var w wireRetryComplete
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		stage, err := pipeline.ParseStage(w.Stage)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		var status pipeline.Status
		if w.Status != "" {
			if status, err = pipeline.ParseStatus(w.Status); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", name, err)
			}
		}
		return RetryComplete{Tagged: w.Tagged, Stage: stage, Success: w.Success, Status: status, Message: w.Message}, nil

	case NameCoverRegenerated, NameSynopsisRegenerated, NameEffectsRegenerated, NameVoicesRegenerated:
		var w wireRegenerated
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		return Regenerated{
			Tagged:  w.Tagged,
			Kind:    regeneratedKind(name),
			Success: w.Success,
			Data: pipeline.Resources{
				CoverURL: w.Data.CoverURL,
				Synopsis: w.Data.Synopsis,
				Effects:  w.Data.Effects,
				Voices:   w.Data.Voices,
			},
			Message: w.Message,
		}, nil

	case NameIntroAudioReady:
		var w wireAudio
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		return IntroAudioReady{Tagged: w.Tagged, Audio: story.AudioClip{Data: w.Audio, Format: w.Format}}, nil

	case NameSceneAudioReady:
		var w wireAudio
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		ev := SceneAudioReady{Tagged: w.Tagged, Audio: story.AudioClip{Data: w.Audio, Format: w.Format}}
		if w.WordTimings != nil {
			ev.Words = w.WordTimings.Words
		}
		return ev, nil

	case NameAudioError:
		var w wireAudioError
		if err := unmarshal(name, data, &w); err != nil {
			return nil, err
		}
		return AudioError{Tagged: w.Tagged, Message: w.Message}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

func unmarshal(name string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func optionalStage(name string) (pipeline.Stage, error) {
	if name == "" {
		return "", nil
	}
	return pipeline.ParseStage(name)
}

func regeneratedKind(name string) pipeline.Kind {
	switch name {
	case NameCoverRegenerated:
		return pipeline.KindArt
	case NameSynopsisRegenerated:
		return pipeline.KindSynopsis
	case NameEffectsRegenerated:
		return pipeline.KindEffects
	default:
		return pipeline.KindVoices
	}
}
