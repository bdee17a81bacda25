package pipeline

import (
	"fmt"

	"taleweaver/internal/domain/story"
)

// Kind names a sub-resource that can be regenerated on its own.
type Kind string

const (
	KindArt      Kind = "art"
	KindSynopsis Kind = "synopsis"
	KindEffects  Kind = "effects"
	KindVoices   Kind = "voices"
)

// Kinds lists every regenerable sub-resource.
var Kinds = []Kind{KindArt, KindSynopsis, KindEffects, KindVoices}

// ParseKind validates a regeneration kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Resources are the independently replaceable parts of a scene.
type Resources struct {
	CoverURL string            `json:"cover_url,omitempty"`
	Synopsis string            `json:"synopsis,omitempty"`
	Effects  []story.EffectCue `json:"effects,omitempty"`
	Voices   []story.Character `json:"voices,omitempty"`
}

// ResourceState tracks an in-flight regeneration.
type ResourceState struct {
	Kind         Kind   `json:"kind"`
	Regenerating bool   `json:"regenerating"`
	Error        string `json:"error,omitempty"`
}

// Regenerate marks a sub-resource as regenerating. It reports whether a
// command should be issued; a kind already regenerating is left alone.
func (t *Tracker) Regenerate(kind Kind) (bool, error) {
	rs, ok := t.regen[kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if rs.Regenerating {
		return false, nil
	}
	rs.Regenerating = true
	rs.Error = ""
	return true, nil
}

// ApplyRegenerated replaces only the fields belonging to kind. Everything
// else, stage statuses included, is left untouched.
func (t *Tracker) ApplyRegenerated(kind Kind, success bool, data Resources, message string) {
	rs, ok := t.regen[kind]
	if !ok {
		return
	}
	rs.Regenerating = false
	if !success {
		rs.Error = message
		return
	}
	rs.Error = ""
	switch kind {
	case KindArt:
		t.resources.CoverURL = data.CoverURL
	case KindSynopsis:
		t.resources.Synopsis = data.Synopsis
	case KindEffects:
		t.resources.Effects = append([]story.EffectCue(nil), data.Effects...)
	case KindVoices:
		t.resources.Voices = append([]story.Character(nil), data.Voices...)
	}
}

// Resources returns a copy of the current sub-resources.
func (t *Tracker) Resources() Resources {
	r := t.resources
	r.Effects = append([]story.EffectCue(nil), r.Effects...)
	r.Voices = append([]story.Character(nil), r.Voices...)
	return r
}

// ResourceStates returns the regeneration state of every kind.
func (t *Tracker) ResourceStates() []ResourceState {
	out := make([]ResourceState, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, *t.regen[k])
	}
	return out
}
