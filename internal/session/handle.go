package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"taleweaver/internal/events"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/playback"
)

func (s *Session) handle(ev events.Event) {
	if g, ok := ev.(events.Generational); ok {
		if gen := g.Epoch(); gen != 0 && !s.epoch.IsCurrent(gen) {
			s.log.WithFields(logrus.Fields{
				"event":   ev.Name(),
				"epoch":   gen,
				"current": s.epoch.Current(),
			}).Debug("Dropping event for superseded epoch")
			return
		}
	}

	switch e := ev.(type) {
	case events.StageUpdate:
		s.onStageUpdate(e)
	case events.Progress:
		s.tracker.ApplyProgress(e.Percent, e.Message, e.Stage)
		s.observer.ProgressChanged(s.tracker.Progress())
		if e.Stage != "" {
			s.stageChanged(e.Stage)
		}
	case events.Ready:
		s.onReady(e)
	case events.PipelineError:
		s.onPipelineError(e)
	case events.RetryComplete:
		s.tracker.ApplyRetryComplete(e.Stage, e.Success, e.Status, e.Message)
		s.stageChanged(e.Stage)
		if !e.Success {
			s.warn(fmt.Sprintf("retry of %s failed: %s", e.Stage, e.Message))
		}
		s.updateBlocked()
	case events.Regenerated:
		s.onRegenerated(e)
	case events.IntroAudioReady:
		s.onIntroAudio(e)
	case events.SceneAudioReady:
		s.onSceneAudio(e)
	case events.AudioError:
		s.onAudioError(e.Message)

	case events.ItemStarted:
		s.seq.HandleStarted(e)
	case events.ItemFinished:
		s.seq.HandleFinished(e)
	case events.CommandFailed:
		s.log.WithError(e.Err).WithField("command", e.Command.Name).Warn("Failed to send command")
		s.warn(fmt.Sprintf("failed to send %s: %v", e.Command.Name, e.Err))
	case events.FallbackFailed:
		if !s.epoch.IsCurrent(e.Generation) {
			return
		}
		s.fallbackCancel = nil
		s.log.WithError(e.Err).Warn("Fallback narration failed")
		s.warn(fmt.Sprintf("narration unavailable: %v", e.Err))

	case events.StartPlayback:
		s.onStartPlayback()
	case events.Cancel:
		s.changeScene("cancel", false)
		s.phase = PhaseCancelled
		s.send(events.CmdCancel, nil)
	case events.ConfirmReady:
		s.onConfirmReady()
	case events.RetryStage:
		s.onRetryStage(e.Stage)
	case events.Regenerate:
		s.onRegenerate(e.Kind)
	case events.Continue:
		s.changeScene("continue", true)
		s.send(events.CmdContinue, func(c *events.Command) { c.Choice = e.Choice })
	case events.Backtrack:
		s.changeScene("backtrack", true)
		s.send(events.CmdBacktrack, nil)
	case events.Pause:
		s.seq.SetPaused(true)
	case events.Resume:
		s.seq.SetPaused(false)
	case events.SetTextDisplay:
		s.textEnabled = e.Enabled

	default:
		s.log.WithField("event", ev.Name()).Warn("Unhandled event")
	}
}

func (s *Session) onStageUpdate(e events.StageUpdate) {
	changed := s.tracker.ApplyStageUpdate(pipeline.Update{
		Stage:     e.Stage,
		Status:    e.Status,
		Detail:    e.Detail,
		Retryable: e.Retryable,
	})
	if !changed {
		s.log.WithFields(logrus.Fields{"stage": e.Stage, "status": e.Status}).Debug("Stage update absorbed")
		return
	}
	s.stageChanged(e.Stage)
	if e.Status == pipeline.StatusError {
		s.warn(fmt.Sprintf("stage %s failed: %s", e.Stage, e.Detail))
	}
	s.updateBlocked()
}

func (s *Session) onPipelineError(e events.PipelineError) {
	s.tracker.ApplyError(e.Stage, e.Message, e.Retryable)
	if e.Stage == "" {
		s.log.WithField("error", e.Message).Error("Pipeline failed")
		s.observer.Blocked(e.Message)
		s.updateBlocked()
		return
	}
	s.stageChanged(e.Stage)
	msg := fmt.Sprintf("stage %s failed: %s", e.Stage, e.Message)
	if e.Retryable {
		msg += " (retryable)"
	}
	s.log.WithFields(logrus.Fields{"stage": e.Stage, "retryable": e.Retryable}).Warn(e.Message)
	s.warn(msg)
	s.updateBlocked()
}

func (s *Session) stageChanged(stage pipeline.Stage) {
	if st, ok := s.tracker.Stage(stage); ok {
		s.observer.StageChanged(st)
	}
}

func (s *Session) updateBlocked() {
	if s.phase != PhaseGenerating && s.phase != PhaseBlocked {
		return
	}
	if s.tracker.Blocked() {
		s.phase = PhaseBlocked
	} else {
		s.phase = PhaseGenerating
	}
}

func (s *Session) onReady(e events.Ready) {
	if s.phase == PhaseCancelled {
		s.log.Debug("Dropping ready for cancelled generation")
		return
	}
	isRetry := s.confirmPending
	if !s.guard.TryComplete(isRetry) {
		if s.retried {
			p := e.Payload
			s.heldReady = &p
			s.warn("pipeline ready after retry; confirm to play it")
		}
		s.log.Debug("Dropping duplicate ready")
		return
	}
	s.confirmPending = false
	s.retried = false
	s.heldReady = nil
	s.acceptReady(e.Payload)
}

func (s *Session) onConfirmReady() {
	s.send(events.CmdConfirmReady, nil)
	if s.heldReady != nil {
		p := *s.heldReady
		s.heldReady = nil
		s.retried = false
		s.guard.TryComplete(true)
		s.acceptReady(p)
		return
	}
	s.confirmPending = true
}

func (s *Session) onRetryStage(stage pipeline.Stage) {
	if err := s.tracker.Retry(stage); err != nil {
		s.log.WithError(err).WithField("stage", stage).Warn("Retry rejected")
		s.warn(fmt.Sprintf("cannot retry %s: %v", stage, err))
		return
	}
	s.changeScene("retry", false)
	s.retried = true
	s.phase = PhaseGenerating
	s.stageChanged(stage)
	s.updateBlocked()
	s.send(events.CmdRetryStage, func(c *events.Command) { c.Stage = stage })
}

func (s *Session) onRegenerate(kind pipeline.Kind) {
	issue, err := s.tracker.Regenerate(kind)
	if err != nil {
		s.warn(fmt.Sprintf("cannot regenerate %s: %v", kind, err))
		return
	}
	if !issue {
		s.log.WithField("kind", kind).Debug("Regeneration already in flight")
		return
	}
	s.send(events.CmdRegenerate, func(c *events.Command) { c.Kind = kind })
}

func (s *Session) onRegenerated(e events.Regenerated) {
	s.tracker.ApplyRegenerated(e.Kind, e.Success, e.Data, e.Message)
	if !e.Success {
		s.warn(fmt.Sprintf("regenerating %s failed: %s", e.Kind, e.Message))
		return
	}
	res := s.tracker.Resources()
	switch e.Kind {
	case pipeline.KindArt:
		s.scene.CoverURL = res.CoverURL
	case pipeline.KindSynopsis:
		s.scene.Synopsis = res.Synopsis
	case pipeline.KindVoices:
		s.scene.Characters = res.Voices
	case pipeline.KindEffects:
		s.scene.Effects = res.Effects
		// New cues replace the running batch only once the scene is audible.
		if s.seq.State() == playback.ScenePlaying && s.fx != nil {
			s.fx.Trigger(s.ctx, res.Effects, s.epoch.Current())
		}
	}
}

func (s *Session) onIntroAudio(e events.IntroAudioReady) {
	switch s.phase {
	case PhasePlaying:
		s.queueIntro(e.Audio)
	case PhaseGenerating, PhaseBlocked, PhaseReady:
		clip := e.Audio
		s.pendingIntro = &clip
	default:
		s.log.WithField("phase", s.phase).Debug("Dropping intro narration")
	}
}

func (s *Session) onSceneAudio(e events.SceneAudioReady) {
	if e.Synthesized {
		s.fallbackCancel = nil
	}
	switch s.phase {
	case PhasePlaying:
		s.queueScene(e)
	case PhaseGenerating, PhaseBlocked, PhaseReady:
		s.pendingScene = &e
	default:
		s.log.WithField("phase", s.phase).Debug("Dropping scene narration")
	}
}

func (s *Session) onAudioError(msg string) {
	s.log.WithField("error", msg).Warn("Narration audio failed")
	s.audioFailed = true
	if s.phase != PhasePlaying {
		return
	}
	if st := s.seq.State(); st != playback.Idle && st != playback.IntroQueued {
		s.warn("narration error: " + msg)
		return
	}
	s.enterTextOnly(msg)
}

func (s *Session) onStartPlayback() {
	switch s.phase {
	case PhaseReady:
	case PhasePlaying:
		s.warn("cannot start playback: already playing")
		return
	default:
		s.warn("cannot start playback: nothing ready to play")
		return
	}
	s.startPlayback()
}
