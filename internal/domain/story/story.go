package story

import "time"

// TimedToken is one narrated unit of text with its position in the scene audio.
type TimedToken struct {
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// WordTimings is the timing envelope delivered alongside scene narration.
type WordTimings struct {
	Words []TimedToken `json:"words"`
}

// EffectCue is one ambient sound effect to fetch and play during a scene.
type EffectCue struct {
	Key    string  `json:"key"`
	Volume float64 `json:"volume"`
	Loop   bool    `json:"loop"`
}

// ClampedVolume keeps the cue volume within 0..1.
func (c EffectCue) ClampedVolume() float64 {
	switch {
	case c.Volume < 0:
		return 0
	case c.Volume > 1:
		return 1
	default:
		return c.Volume
	}
}

// Character is one voiced role in a scene.
type Character struct {
	Name  string `json:"name"`
	Voice string `json:"voice"`
}

// Choice is a continuation the reader can pick after a scene.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Scene is the finalized content of one generated scene.
type Scene struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Synopsis   string      `json:"synopsis"`
	Intro      string      `json:"intro"`
	Text       string      `json:"text"`
	CoverURL   string      `json:"cover_url"`
	Characters []Character `json:"characters"`
	Effects    []EffectCue `json:"effects"`
	Choices    []Choice    `json:"choices"`
	Quality    float64     `json:"quality"`
}

// AudioClip is an encoded narration payload.
type AudioClip struct {
	Data   []byte `json:"-"`
	Format string `json:"format"`
}

// Empty reports whether the clip carries no audio.
func (a AudioClip) Empty() bool {
	return len(a.Data) == 0
}

// AudioBundle is pre-rendered narration shipped with the ready payload.
type AudioBundle struct {
	Intro   AudioClip    `json:"intro"`
	Scene   AudioClip    `json:"scene"`
	Timings []TimedToken `json:"timings"`
}

// ReadyPayload is the terminal output of one pipeline run.
type ReadyPayload struct {
	Stages      map[string]string `json:"stages"`
	Content     Scene             `json:"content"`
	AudioBundle *AudioBundle      `json:"audio_bundle,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
}
