// Package playback sequences intro and scene narration for one scene at a
// time and exposes the single "scene started" transition.
package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"taleweaver/internal/audio"
	"taleweaver/internal/domain/story"
	"taleweaver/internal/events"
)

// ErrOutOfOrder is returned when narration arrives in a state that cannot
// accept it (a duplicate, or an intro after the scene was queued).
var ErrOutOfOrder = errors.New("narration out of order")

// State is the playback position of the current scene.
type State int

const (
	Idle State = iota
	IntroQueued
	SceneQueued
	ScenePlaying
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case IntroQueued:
		return "intro_queued"
	case SceneQueued:
		return "scene_queued"
	case ScenePlaying:
		return "scene_playing"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger names the signal that moved a scene into ScenePlaying.
type Trigger string

const (
	// TriggerItemStarted is the narration channel's start callback for the scene item.
	TriggerItemStarted Trigger = "item-started"
	// TriggerFirstWord is the fallback: the highlight cursor reached word zero.
	TriggerFirstWord Trigger = "first-word"
)

// Hooks receive the sequencer's transitions. Both run on the caller's goroutine.
type Hooks struct {
	SceneStarted func(gen uint64, via Trigger)
	SceneEnded   func(gen uint64)
}

// Sequencer is the playback state machine for one scene in flight. It is the
// only component that touches the narration channel. It is owned by the
// session actor and is not safe for concurrent use.
type Sequencer struct {
	narrator audio.Narrator
	notify   func(events.Event)
	hooks    Hooks
	log      *logrus.Entry

	gen       uint64
	state     State
	intro     audio.Handle
	scene     audio.Handle
	introDone bool
	// started is the one guard shared by the primary and fallback signals.
	started bool
}

// New returns an idle sequencer. notify must hand narration callbacks back
// to the owning actor; it is called from the narrator's dispatcher goroutine.
func New(narrator audio.Narrator, notify func(events.Event), hooks Hooks, log *logrus.Entry) *Sequencer {
	return &Sequencer{
		narrator: narrator,
		notify:   notify,
		hooks:    hooks,
		log:      log,
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Reset drops all queued narration and returns to Idle for generation gen.
func (s *Sequencer) Reset(gen uint64) {
	s.narrator.Clear()
	s.gen = gen
	s.state = Idle
	s.intro = 0
	s.scene = 0
	s.introDone = false
	s.started = false
}

// QueueIntro queues introductory narration. It is only accepted while Idle.
func (s *Sequencer) QueueIntro(clip story.AudioClip) error {
	if s.state != Idle {
		return fmt.Errorf("%w: intro in %s", ErrOutOfOrder, s.state)
	}
	h, err := s.enqueue("intro", clip)
	if err != nil {
		return err
	}
	s.intro = h
	s.introDone = false
	s.started = false
	s.state = IntroQueued
	s.log.WithField("epoch", s.gen).Debug("intro narration queued")
	return nil
}

// QueueScene queues scene narration behind the intro, if any.
func (s *Sequencer) QueueScene(clip story.AudioClip) error {
	if s.state != Idle && s.state != IntroQueued {
		return fmt.Errorf("%w: scene in %s", ErrOutOfOrder, s.state)
	}
	h, err := s.enqueue("scene", clip)
	if err != nil {
		return err
	}
	if s.state == Idle {
		s.introDone = true
	}
	s.scene = h
	s.state = SceneQueued
	s.log.WithField("epoch", s.gen).Debug("scene narration queued")
	return nil
}

func (s *Sequencer) enqueue(label string, clip story.AudioClip) (audio.Handle, error) {
	h, err := s.narrator.Enqueue(audio.Item{Label: label, Clip: clip})
	if err != nil {
		return 0, fmt.Errorf("failed to queue %s narration: %w", label, err)
	}
	gen := s.gen
	s.narrator.OnItemStarted(h, func() {
		s.notify(events.ItemStarted{Generation: gen, Handle: uint64(h)})
	})
	s.narrator.OnItemFinished(h, func() {
		s.notify(events.ItemFinished{Generation: gen, Handle: uint64(h)})
	})
	return h, nil
}

// HandleStarted processes a narration start callback. It reports whether the
// scene entered ScenePlaying.
func (s *Sequencer) HandleStarted(ev events.ItemStarted) bool {
	if ev.Generation != s.gen {
		return false
	}
	switch audio.Handle(ev.Handle) {
	case s.intro:
		s.log.WithField("epoch", s.gen).Debug("intro narration started")
		return false
	case s.scene:
		return s.enterScenePlaying(TriggerItemStarted)
	}
	return false
}

// FirstWordReached is the fallback start signal from the highlight cursor.
func (s *Sequencer) FirstWordReached() bool {
	return s.enterScenePlaying(TriggerFirstWord)
}

func (s *Sequencer) enterScenePlaying(via Trigger) bool {
	if s.state != SceneQueued || s.started {
		return false
	}
	s.started = true
	s.state = ScenePlaying
	s.log.WithFields(logrus.Fields{"epoch": s.gen, "via": via}).Info("scene narration started")
	if s.hooks.SceneStarted != nil {
		s.hooks.SceneStarted(s.gen, via)
	}
	return true
}

// HandleFinished processes a narration finished callback.
func (s *Sequencer) HandleFinished(ev events.ItemFinished) {
	if ev.Generation != s.gen {
		return
	}
	switch audio.Handle(ev.Handle) {
	case s.intro:
		s.introDone = true
	case s.scene:
		if s.state != ScenePlaying && s.state != SceneQueued {
			return
		}
		s.state = Ended
		s.log.WithField("epoch", s.gen).Info("scene narration ended")
		if s.hooks.SceneEnded != nil {
			s.hooks.SceneEnded(s.gen)
		}
	}
}

// CursorEligible reports whether the highlight cursor may poll: the scene is
// playing, or it is queued with nothing ahead of it on the narration channel.
// The cursor never polls while the intro is audible.
func (s *Sequencer) CursorEligible() bool {
	switch s.state {
	case ScenePlaying:
		return true
	case SceneQueued:
		return s.introDone
	}
	return false
}

// SceneAudible reports whether scene narration is what the channel is
// playing, whether or not its start callback has been seen.
func (s *Sequencer) SceneAudible() bool {
	switch s.state {
	case ScenePlaying:
		return true
	case SceneQueued:
		return s.scene != 0 && s.narrator.Current() == s.scene
	}
	return false
}

// Position is the narration position inside the current item.
func (s *Sequencer) Position() time.Duration {
	return s.narrator.Position()
}

// SetPaused pauses or resumes narration.
func (s *Sequencer) SetPaused(paused bool) {
	s.narrator.SetPaused(paused)
}

// Paused reports whether narration is paused.
func (s *Sequencer) Paused() bool {
	return s.narrator.Paused()
}
