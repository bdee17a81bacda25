package session

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"taleweaver/internal/domain/story"
	"taleweaver/internal/events"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/playback"
)

// acceptReady is the completion side effect. The guard has already admitted
// it for this generation.
func (s *Session) acceptReady(p story.ReadyPayload) {
	s.tracker.AdoptStatuses(p.Stages)
	s.tracker.AdoptScene(p.Content)
	s.scene = p.Content
	s.ready = &p
	s.phase = PhaseReady
	for _, st := range s.tracker.Stages() {
		s.observer.StageChanged(st)
	}
	s.log.WithFields(logrus.Fields{"scene": p.Content.ID, "epoch": s.epoch.Current()}).Info("Pipeline ready")
	s.observer.SceneReady(p.Content)

	if s.autoStart {
		s.startPlayback()
	}
}

func (s *Session) startPlayback() {
	s.phase = PhasePlaying
	s.log.WithField("scene", s.scene.ID).Info("Entered playback")
	s.observer.EnteredPlayback(s.scene)
	s.send(events.CmdStartPlayback, nil)

	if s.ready != nil && s.ready.AudioBundle != nil {
		b := s.ready.AudioBundle
		if !b.Intro.Empty() {
			s.queueIntro(b.Intro)
		}
		if !b.Scene.Empty() {
			s.queueScene(events.SceneAudioReady{Audio: b.Scene, Words: b.Timings})
		}
	}
	if s.pendingIntro != nil {
		clip := *s.pendingIntro
		s.pendingIntro = nil
		s.queueIntro(clip)
	}
	if s.pendingScene != nil {
		ev := *s.pendingScene
		s.pendingScene = nil
		s.queueScene(ev)
	}

	if s.seq.State() != playback.SceneQueued && s.narrationFailed() {
		s.enterTextOnly("narration unavailable")
	}
}

// narrationFailed reports whether no scene narration will arrive from the
// pipeline for this generation.
func (s *Session) narrationFailed() bool {
	if s.audioFailed {
		return true
	}
	st, ok := s.tracker.Stage(pipeline.StageSynthesis)
	return ok && st.Status == pipeline.StatusError
}

// changeScene runs the cancellation sequence: advance the epoch, abort and
// stop every effect, and return the sequencer to Idle. It runs on the actor
// with no suspension in between.
func (s *Session) changeScene(reason string, newGeneration bool) {
	gen := s.epoch.Advance()
	if s.fallbackCancel != nil {
		s.fallbackCancel()
		s.fallbackCancel = nil
	}
	if s.fx != nil {
		s.fx.StopAll()
	}
	s.seq.Reset(gen)
	s.cursor.Clear()
	s.poller.Set(false)

	s.pendingIntro = nil
	s.pendingScene = nil
	s.textOnly = false
	s.audioFailed = false

	if newGeneration {
		s.tracker.Reset()
		s.guard.Reset()
		s.scene = story.Scene{}
		s.ready = nil
		s.heldReady = nil
		s.retried = false
		s.confirmPending = false
		s.phase = PhaseGenerating
	}
	s.log.WithFields(logrus.Fields{"epoch": gen, "reason": reason}).Info("Scene changed")
}

func (s *Session) queueIntro(clip story.AudioClip) {
	if err := s.seq.QueueIntro(clip); err != nil {
		if errors.Is(err, playback.ErrOutOfOrder) {
			s.log.WithError(err).Debug("Dropping intro narration")
			return
		}
		s.log.WithError(err).Warn("Failed to queue intro narration")
		s.warn("intro narration could not be played")
	}
}

func (s *Session) queueScene(ev events.SceneAudioReady) {
	if err := s.seq.QueueScene(ev.Audio); err != nil {
		if errors.Is(err, playback.ErrOutOfOrder) {
			s.log.WithError(err).Debug("Dropping scene narration")
			return
		}
		s.log.WithError(err).Warn("Failed to queue scene narration")
		if ev.Synthesized {
			s.textOnly = true
			s.warn("fallback narration could not be played")
			return
		}
		s.enterTextOnly(err.Error())
		return
	}
	s.textOnly = false
	if len(ev.Words) > 0 {
		s.cursor.Load(ev.Words)
	} else {
		s.cursor.Clear()
	}
}

// enterTextOnly keeps the session usable without narration and, when
// configured, synthesizes the scene text in the background.
func (s *Session) enterTextOnly(reason string) {
	if !s.textOnly {
		s.textOnly = true
		s.warn("continuing without narration: " + reason)
	}
	s.startFallback()
}

func (s *Session) startFallback() {
	if s.synth == nil || s.fallbackCancel != nil {
		return
	}
	text := strings.TrimSpace(s.scene.Text)
	if text == "" {
		return
	}

	gen := s.epoch.Current()
	ctx, cancel := context.WithCancel(s.ctx)
	s.fallbackCancel = cancel
	log := s.log.WithFields(logrus.Fields{"epoch": gen, "engine": s.synth.Name()})
	log.Info("Synthesizing fallback narration")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		clip, err := s.synth.Synthesize(ctx, text)
		if err != nil {
			if ctx.Err() == nil {
				s.Post(events.FallbackFailed{Generation: gen, Err: err})
			}
			return
		}
		s.Post(events.SceneAudioReady{
			Tagged:      events.Tagged{Generation: gen},
			Audio:       clip,
			Synthesized: true,
		})
	}()
}

func (s *Session) onSceneStarted(gen uint64, via playback.Trigger) {
	if !s.epoch.IsCurrent(gen) {
		return
	}
	if s.fx != nil {
		s.fx.Trigger(s.ctx, s.tracker.Resources().Effects, gen)
	}
	s.observer.SceneStarted(gen, via)
}

func (s *Session) onSceneEnded(gen uint64) {
	if s.fx != nil {
		s.fx.StopAll()
	}
	s.poller.Set(false)
	if s.epoch.IsCurrent(gen) && s.phase == PhasePlaying {
		s.phase = PhaseEnded
	}
	s.observer.SceneEnded(gen)
}

// tick advances the highlight cursor from the live narration position.
func (s *Session) tick() {
	if !s.seq.SceneAudible() {
		return
	}
	idx, changed := s.cursor.Advance(s.seq.Position())
	if !changed || idx < 0 {
		return
	}
	if tok, ok := s.cursor.Token(idx); ok {
		s.observer.WordHighlighted(idx, tok)
	}
	// The cursor reaching the first word is the fallback scene-start signal.
	s.seq.FirstWordReached()
}

// refreshPolling runs the poller only while highlighting can make progress.
func (s *Session) refreshPolling() {
	run := s.phase == PhasePlaying &&
		s.textEnabled &&
		s.cursor.Loaded() &&
		!s.seq.Paused() &&
		s.seq.CursorEligible()
	s.poller.Set(run)
}
