// Package session runs the playback coordinator: one actor goroutine that
// owns the epoch, completion guard, pipeline tracker, playback sequencer,
// effect engine and highlight cursor of a single listening session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taleweaver/internal/audio"
	"taleweaver/internal/domain/story"
	"taleweaver/internal/epoch"
	"taleweaver/internal/events"
	"taleweaver/internal/highlight"
	"taleweaver/internal/narration/tts"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/playback"
)

const (
	defaultInboxSize = 64
	maxWarnings      = 10
)

// Effects plays ambient cues for the scene that is playing.
type Effects interface {
	Trigger(ctx context.Context, cues []story.EffectCue, epoch uint64)
	StopAll()
	Active() int
}

// Commander delivers outbound commands to the generation pipeline.
type Commander interface {
	Send(ctx context.Context, cmd events.Command) error
}

type Options struct {
	Narrator  audio.Narrator
	Effects   Effects
	Commander Commander
	// Synthesizer renders fallback narration. Nil disables the fallback.
	Synthesizer tts.Synthesizer
	Observer    Observer
	Log         *logrus.Entry

	PollInterval time.Duration
	// TextDisplay enables word highlighting from the start.
	TextDisplay bool
	// AutoStart enters playback as soon as the pipeline is ready.
	AutoStart bool
	InboxSize int
}

// Session is the coordinator for one listening session. All state below the
// inbox is owned by the goroutine running Run.
type Session struct {
	id        uuid.UUID
	inbox     chan events.Event
	done      chan struct{}
	log       *logrus.Entry
	observer  Observer
	commander Commander
	synth     tts.Synthesizer
	fx        Effects
	autoStart bool

	ctx     context.Context
	wg      sync.WaitGroup
	epoch   epoch.Counter
	guard   pipeline.CompletionGuard
	tracker *pipeline.Tracker
	seq     *playback.Sequencer
	cursor  *highlight.Cursor
	poller  *highlight.Poller

	phase       Phase
	scene       story.Scene
	ready       *story.ReadyPayload
	textEnabled bool
	textOnly    bool
	audioFailed bool
	warnings    []string

	pendingIntro *story.AudioClip
	pendingScene *events.SceneAudioReady

	// retried is set by an accepted stage retry until the next completion.
	retried bool
	// confirmPending makes the next ready a retry completion.
	confirmPending bool
	// heldReady is a ready refused by the guard after a retry, kept until
	// the user confirms it.
	heldReady      *story.ReadyPayload
	fallbackCancel context.CancelFunc

	snapMu sync.Mutex
	snap   Snapshot
}

// New returns a session at epoch 1 with every stage pending.
func New(opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	size := opts.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}

	id := uuid.New()
	s := &Session{
		id:          id,
		inbox:       make(chan events.Event, size),
		done:        make(chan struct{}),
		log:         log.WithField("session", id.String()),
		observer:    observer,
		commander:   opts.Commander,
		synth:       opts.Synthesizer,
		fx:          opts.Effects,
		autoStart:   opts.AutoStart,
		ctx:         context.Background(),
		tracker:     pipeline.NewTracker(),
		cursor:      highlight.NewCursor(),
		poller:      highlight.NewPoller(opts.PollInterval),
		textEnabled: opts.TextDisplay,
	}
	s.seq = playback.New(opts.Narrator, func(ev events.Event) { s.Post(ev) }, playback.Hooks{
		SceneStarted: s.onSceneStarted,
		SceneEnded:   s.onSceneEnded,
	}, s.log.WithField("component", "playback"))
	s.seq.Reset(s.epoch.Advance())
	s.publish()
	return s
}

// ID returns the session id sent with every outbound command.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Post hands an event to the actor. It reports false once the session has
// stopped.
func (s *Session) Post(ev events.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Run processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	s.log.Info("Session started")
	defer func() {
		s.shutdown()
		close(s.done)
		s.wg.Wait()
		s.log.Info("Session stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.inbox:
			s.handle(ev)
		case <-s.poller.C():
			s.tick()
		}
		s.refreshPolling()
		s.publish()
	}
}

func (s *Session) shutdown() {
	s.poller.Set(false)
	if s.fallbackCancel != nil {
		s.fallbackCancel()
		s.fallbackCancel = nil
	}
	if s.fx != nil {
		s.fx.StopAll()
	}
	s.seq.Reset(s.epoch.Advance())
	s.publish()
}

// Snapshot returns the state as of the last processed event.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	snap := s.snap
	snap.Stages = append([]pipeline.StageState(nil), s.snap.Stages...)
	snap.Regenerating = append([]pipeline.ResourceState(nil), s.snap.Regenerating...)
	snap.Warnings = append([]string(nil), s.snap.Warnings...)
	return snap
}

func (s *Session) publish() {
	snap := Snapshot{
		Session:      s.id,
		Phase:        s.phase,
		Epoch:        s.epoch.Current(),
		Playback:     s.seq.State(),
		SceneID:      s.scene.ID,
		Title:        s.scene.Title,
		Stages:       s.tracker.Stages(),
		Progress:     s.tracker.Progress(),
		Completed:    s.guard.Completed(),
		Failure:      s.tracker.Failure(),
		Regenerating: s.tracker.ResourceStates(),
		Highlight:    s.cursor.Index(),
		TextOnly:     s.textOnly,
		TextDisplay:  s.textEnabled,
		Paused:       s.seq.Paused(),
		Warnings:     append([]string(nil), s.warnings...),
	}
	if tok, ok := s.cursor.Token(snap.Highlight); ok {
		snap.Word = tok.Text
	}
	if s.fx != nil {
		snap.ActiveEffects = s.fx.Active()
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

func (s *Session) warn(msg string) {
	s.warnings = append(s.warnings, msg)
	if len(s.warnings) > maxWarnings {
		s.warnings = s.warnings[len(s.warnings)-maxWarnings:]
	}
	s.observer.Warning(msg)
}

// send delivers cmd in the background; failures come back as CommandFailed.
func (s *Session) send(name string, fill func(*events.Command)) {
	if s.commander == nil {
		return
	}
	cmd := events.NewCommand(s.id, name, s.epoch.Current())
	if fill != nil {
		fill(&cmd)
	}
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.commander.Send(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.Post(events.CommandFailed{Command: cmd, Err: err})
		}
	}()
}
