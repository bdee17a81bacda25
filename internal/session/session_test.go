package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taleweaver/internal/audio"
	"taleweaver/internal/domain/story"
	"taleweaver/internal/effects"
	"taleweaver/internal/events"
	"taleweaver/internal/narration/tts"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/playback"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type trigger struct {
	cues  []story.EffectCue
	epoch uint64
}

type fakeEffects struct {
	mu       sync.Mutex
	triggers []trigger
	stops    int
}

func (f *fakeEffects) Trigger(ctx context.Context, cues []story.EffectCue, epoch uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger{cues: cues, epoch: epoch})
}

func (f *fakeEffects) StopAll() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeEffects) Active() int { return 0 }

func (f *fakeEffects) Triggers() []trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trigger(nil), f.triggers...)
}

func (f *fakeEffects) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeCommander struct {
	mu   sync.Mutex
	cmds []events.Command
	err  error
}

func (c *fakeCommander) Send(ctx context.Context, cmd events.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	return c.err
}

func (c *fakeCommander) Named(name string) []events.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Command
	for _, cmd := range c.cmds {
		if cmd.Name == name {
			out = append(out, cmd)
		}
	}
	return out
}

type recorder struct {
	NopObserver
	entered  []story.Scene
	started  []playback.Trigger
	ended    int
	words    []string
	warnings []string
	blocked  []string
}

func (r *recorder) EnteredPlayback(sc story.Scene)              { r.entered = append(r.entered, sc) }
func (r *recorder) SceneStarted(_ uint64, via playback.Trigger) { r.started = append(r.started, via) }
func (r *recorder) SceneEnded(uint64)                           { r.ended++ }
func (r *recorder) WordHighlighted(_ int, tok story.TimedToken) { r.words = append(r.words, tok.Text) }
func (r *recorder) Warning(msg string)                          { r.warnings = append(r.warnings, msg) }
func (r *recorder) Blocked(msg string)                          { r.blocked = append(r.blocked, msg) }

type harness struct {
	t        *testing.T
	s        *Session
	narrator *audio.MockNarrator
	fx       *fakeEffects
	cmd      *fakeCommander
	obs      *recorder
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	h := &harness{
		t:        t,
		narrator: audio.NewMockNarrator(),
		fx:       &fakeEffects{},
		cmd:      &fakeCommander{},
		obs:      &recorder{},
	}
	opts := Options{
		Narrator:     h.narrator,
		Effects:      h.fx,
		Commander:    h.cmd,
		Observer:     h.obs,
		Log:          quietLog(),
		PollInterval: time.Hour,
		TextDisplay:  true,
		AutoStart:    true,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.s = New(opts)
	t.Cleanup(func() {
		h.s.poller.Set(false)
		h.s.wg.Wait()
	})
	return h
}

// post handles ev and everything it causes the way Run does.
func (h *harness) post(ev events.Event) {
	h.s.handle(ev)
	h.settle()
}

func (h *harness) settle() {
	for {
		select {
		case ev := <-h.s.inbox:
			h.s.handle(ev)
		default:
			h.s.refreshPolling()
			h.s.publish()
			return
		}
	}
}

// tickAt moves narration to position and runs one poll.
func (h *harness) tickAt(position time.Duration) {
	h.narrator.SetPosition(position)
	h.s.tick()
	h.settle()
}

func (h *harness) item(label string) audio.Handle {
	for _, it := range h.narrator.Items() {
		if it.Label == label {
			return it.Handle
		}
	}
	h.t.Fatalf("no %s narration queued", label)
	return 0
}

var tokens = []story.TimedToken{
	{Text: "the", StartMs: 0, EndMs: 200},
	{Text: "cat", StartMs: 200, EndMs: 500},
	{Text: "sat", StartMs: 500, EndMs: 900},
}

func allSucceeded() map[string]string {
	out := make(map[string]string)
	for _, st := range pipeline.Stages {
		out[string(st)] = string(pipeline.StatusSuccess)
	}
	return out
}

func payload(bundle *story.AudioBundle) story.ReadyPayload {
	return story.ReadyPayload{
		Stages: allSucceeded(),
		Content: story.Scene{
			ID:      "lighthouse",
			Title:   "The Lighthouse",
			Text:    "the cat sat",
			Effects: []story.EffectCue{{Key: "waves", Volume: 0.6, Loop: true}},
		},
		AudioBundle: bundle,
	}
}

func fullBundle() *story.AudioBundle {
	return &story.AudioBundle{
		Intro:   story.AudioClip{Data: []byte("intro"), Format: "mp3"},
		Scene:   story.AudioClip{Data: []byte("scene"), Format: "mp3"},
		Timings: tokens,
	}
}

func TestDuplicateReadyEntersPlaybackOnce(t *testing.T) {
	h := newHarness(t)

	require.False(t, h.s.Snapshot().Completed)
	h.post(events.Ready{Payload: payload(nil)})
	h.post(events.Ready{Payload: payload(nil)})

	require.Len(t, h.obs.entered, 1)
	require.Equal(t, PhasePlaying, h.s.Snapshot().Phase)
	require.True(t, h.s.Snapshot().Completed)
	require.Eventually(t, func() bool { return len(h.cmd.Named(events.CmdStartPlayback)) == 1 }, time.Second, time.Millisecond)
	require.Never(t, func() bool { return len(h.cmd.Named(events.CmdStartPlayback)) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestIntroThenSceneTriggersEffectsOnce(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(fullBundle())})
	require.Len(t, h.narrator.Items(), 2)

	intro, scene := h.item("intro"), h.item("scene")
	h.narrator.Start(intro)
	h.settle()
	h.tickAt(100 * time.Millisecond)
	require.Empty(t, h.fx.Triggers(), "effects must not start during the intro")
	require.Empty(t, h.obs.words, "the cursor does not poll during the intro")
	require.False(t, h.s.poller.Running())

	h.narrator.Finish(intro)
	h.narrator.Start(scene)
	h.settle()
	require.Equal(t, playback.ScenePlaying, h.s.seq.State())
	require.True(t, h.s.poller.Running())

	// The first word reaching the cursor is absorbed by the shared guard.
	h.tickAt(100 * time.Millisecond)
	h.tickAt(650 * time.Millisecond)

	triggers := h.fx.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, uint64(1), triggers[0].epoch)
	assert.Equal(t, "waves", triggers[0].cues[0].Key)
	assert.Equal(t, []playback.Trigger{playback.TriggerItemStarted}, h.obs.started)
	assert.Equal(t, []string{"the", "sat"}, h.obs.words)

	snap := h.s.Snapshot()
	assert.Equal(t, 2, snap.Highlight)
	assert.Equal(t, "sat", snap.Word)
}

func TestFirstWordFallbackStartsScene(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(&story.AudioBundle{
		Scene:   story.AudioClip{Data: []byte("scene"), Format: "mp3"},
		Timings: tokens,
	})})
	require.True(t, h.s.poller.Running(), "no intro ahead of the scene")

	// Nothing is audible yet: a tick must not start the scene.
	h.tickAt(50 * time.Millisecond)
	require.Empty(t, h.fx.Triggers())

	// The start callback is lost but the scene is audible.
	scene := h.item("scene")
	h.narrator.Play(scene)
	h.tickAt(50 * time.Millisecond)
	require.Len(t, h.fx.Triggers(), 1)
	require.Equal(t, []playback.Trigger{playback.TriggerFirstWord}, h.obs.started)

	h.narrator.Start(scene)
	h.settle()
	require.Len(t, h.fx.Triggers(), 1)
}

func TestSceneEndStopsEffects(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(&story.AudioBundle{
		Scene:   story.AudioClip{Data: []byte("scene"), Format: "mp3"},
		Timings: tokens,
	})})
	scene := h.item("scene")
	h.narrator.Start(scene)
	h.settle()
	stops := h.fx.Stops()

	h.narrator.Finish(scene)
	h.settle()
	require.Equal(t, stops+1, h.fx.Stops())
	require.Equal(t, 1, h.obs.ended)
	require.Equal(t, PhaseEnded, h.s.Snapshot().Phase)
	require.False(t, h.s.poller.Running())
}

func TestNarrationQueuedBeforeReadyIsHeld(t *testing.T) {
	h := newHarness(t)
	h.post(events.SceneAudioReady{Audio: story.AudioClip{Data: []byte("scene"), Format: "mp3"}, Words: tokens})
	h.post(events.IntroAudioReady{Audio: story.AudioClip{Data: []byte("intro"), Format: "mp3"}})
	require.Empty(t, h.narrator.Items())

	h.post(events.Ready{Payload: payload(nil)})
	items := h.narrator.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "intro", items[0].Label)
	assert.Equal(t, "scene", items[1].Label)
}

func TestAutoStartDisabledWaitsForUser(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AutoStart = false })
	h.post(events.Ready{Payload: payload(fullBundle())})
	require.Equal(t, PhaseReady, h.s.Snapshot().Phase)
	require.Empty(t, h.narrator.Items())

	h.post(events.StartPlayback{})
	require.Equal(t, PhasePlaying, h.s.Snapshot().Phase)
	require.Len(t, h.narrator.Items(), 2)

	h.post(events.StartPlayback{})
	require.Len(t, h.obs.entered, 1)
	require.Contains(t, h.obs.warnings, "cannot start playback: already playing")
}

func TestContinueResetsScene(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(fullBundle())})
	oldScene := h.item("scene")
	h.narrator.Start(h.item("intro"))
	h.settle()
	stops := h.fx.Stops()

	h.post(events.Continue{Choice: "follow-the-light"})

	snap := h.s.Snapshot()
	require.Equal(t, uint64(2), snap.Epoch)
	require.Equal(t, PhaseGenerating, snap.Phase)
	require.Equal(t, playback.Idle, snap.Playback)
	require.Equal(t, -1, snap.Highlight)
	require.False(t, snap.Completed, "the next scene may complete again")
	require.Equal(t, stops+1, h.fx.Stops())
	require.Equal(t, 2, h.narrator.Cleared(), "reset at start and on continue")
	for _, st := range snap.Stages {
		require.Equal(t, pipeline.StatusPending, st.Status)
	}

	// A callback from the old scene cannot start anything.
	h.narrator.Start(oldScene)
	h.settle()
	require.Empty(t, h.fx.Triggers())

	require.Eventually(t, func() bool { return len(h.cmd.Named(events.CmdContinue)) == 1 }, time.Second, time.Millisecond)
	cmd := h.cmd.Named(events.CmdContinue)[0]
	assert.Equal(t, "follow-the-light", cmd.Choice)
	assert.Equal(t, uint64(2), cmd.Generation)
	assert.Equal(t, h.s.ID(), cmd.Session)

	// The guard is re-armed for the new generation.
	h.post(events.Ready{Payload: payload(fullBundle())})
	require.Len(t, h.obs.entered, 2)
	h.narrator.Start(h.item("intro"))
	h.narrator.Finish(h.item("intro"))
	h.narrator.Start(h.item("scene"))
	h.settle()
	triggers := h.fx.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, uint64(2), triggers[0].epoch)
}

func TestStaleEventsDropped(t *testing.T) {
	h := newHarness(t)
	h.post(events.Backtrack{})
	require.Equal(t, uint64(2), h.s.Snapshot().Epoch)

	h.post(events.StageUpdate{Tagged: events.Tagged{Generation: 1}, Stage: pipeline.StageArt, Status: pipeline.StatusSuccess})
	st, _ := h.s.tracker.Stage(pipeline.StageArt)
	require.Equal(t, pipeline.StatusPending, st.Status)

	h.post(events.Ready{Tagged: events.Tagged{Generation: 1}, Payload: payload(nil)})
	require.Empty(t, h.obs.entered)

	h.post(events.StageUpdate{Tagged: events.Tagged{Generation: 2}, Stage: pipeline.StageArt, Status: pipeline.StatusSuccess})
	st, _ = h.s.tracker.Stage(pipeline.StageArt)
	require.Equal(t, pipeline.StatusSuccess, st.Status)
}

func TestStageFailureBlocksUntilRetried(t *testing.T) {
	h := newHarness(t)
	retryable := true
	h.post(events.StageUpdate{Stage: pipeline.StageContent, Status: pipeline.StatusSuccess})
	h.post(events.StageUpdate{Stage: pipeline.StageArt, Status: pipeline.StatusError, Detail: "renderer crashed", Retryable: &retryable})
	h.post(events.PipelineError{Stage: pipeline.StageQuality, Message: "flagged", Retryable: false})
	require.Equal(t, PhaseBlocked, h.s.Snapshot().Phase)

	h.post(events.RetryStage{Stage: pipeline.StageQuality})
	require.Equal(t, uint64(1), h.s.Snapshot().Epoch, "rejected retry changes nothing")
	require.Contains(t, h.obs.warnings[len(h.obs.warnings)-1], "not retryable")

	h.post(events.RetryStage{Stage: pipeline.StageArt})
	snap := h.s.Snapshot()
	require.Equal(t, uint64(2), snap.Epoch)
	require.Equal(t, PhaseBlocked, snap.Phase, "quality is still failed")
	content, _ := h.s.tracker.Stage(pipeline.StageContent)
	require.Equal(t, pipeline.StatusSuccess, content.Status, "siblings are untouched")
	art, _ := h.s.tracker.Stage(pipeline.StageArt)
	require.Equal(t, pipeline.StatusActive, art.Status)

	require.Eventually(t, func() bool { return len(h.cmd.Named(events.CmdRetryStage)) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, pipeline.StageArt, h.cmd.Named(events.CmdRetryStage)[0].Stage)
}

func TestPipelineFailureIsBlocking(t *testing.T) {
	h := newHarness(t)
	h.post(events.PipelineError{Message: "model unavailable"})
	require.Equal(t, []string{"model unavailable"}, h.obs.blocked)
	snap := h.s.Snapshot()
	require.Equal(t, PhaseBlocked, snap.Phase)
	require.Equal(t, "model unavailable", snap.Failure)
}

func TestReadyAfterRetryNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(nil)})
	require.Len(t, h.obs.entered, 1)

	retryable := true
	h.post(events.PipelineError{Stage: pipeline.StageSynthesis, Message: "voice timeout", Retryable: retryable})
	h.post(events.RetryStage{Stage: pipeline.StageSynthesis})
	require.Equal(t, PhaseGenerating, h.s.Snapshot().Phase)

	h.post(events.Ready{Payload: payload(fullBundle())})
	require.Len(t, h.obs.entered, 1, "natural completion stays guarded")

	h.post(events.ConfirmReady{})
	require.Len(t, h.obs.entered, 2)
	require.Len(t, h.narrator.Items(), 2)
	require.Eventually(t, func() bool { return len(h.cmd.Named(events.CmdConfirmReady)) == 1 }, time.Second, time.Millisecond)

	h.post(events.Ready{Payload: payload(fullBundle())})
	require.Len(t, h.obs.entered, 2)
}

func TestConfirmBeforeReadyMarksRetryCompletion(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(nil)})
	h.post(events.PipelineError{Stage: pipeline.StageVoices, Message: "casting failed", Retryable: true})
	h.post(events.RetryStage{Stage: pipeline.StageVoices})
	h.post(events.ConfirmReady{})

	h.post(events.Ready{Payload: payload(nil)})
	require.Len(t, h.obs.entered, 2)
}

func TestCancelStopsEverything(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(fullBundle())})
	h.post(events.Cancel{})

	snap := h.s.Snapshot()
	require.Equal(t, PhaseCancelled, snap.Phase)
	require.Equal(t, uint64(2), snap.Epoch)
	require.Equal(t, playback.Idle, snap.Playback)
	require.Empty(t, h.narrator.Items())

	h.post(events.Ready{Payload: payload(fullBundle())})
	require.Len(t, h.obs.entered, 1)
	require.Eventually(t, func() bool { return len(h.cmd.Named(events.CmdCancel)) == 1 }, time.Second, time.Millisecond)
}

func TestRegenerateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(&story.AudioBundle{
		Scene: story.AudioClip{Data: []byte("scene"), Format: "mp3"},
	})})
	h.narrator.Start(h.item("scene"))
	h.settle()
	require.Len(t, h.fx.Triggers(), 1)

	h.post(events.Regenerate{Kind: pipeline.KindArt})
	h.post(events.Regenerate{Kind: pipeline.KindArt})
	h.post(events.Regenerate{Kind: pipeline.KindEffects})
	require.Eventually(t, func() bool { return len(h.cmd.Named(events.CmdRegenerate)) == 2 }, time.Second, time.Millisecond)
	require.Never(t, func() bool { return len(h.cmd.Named(events.CmdRegenerate)) > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	h.post(events.Regenerated{Kind: pipeline.KindArt, Success: true, Data: pipeline.Resources{CoverURL: "https://img/2.png"}})
	assert.Equal(t, "https://img/2.png", h.s.tracker.Resources().CoverURL)
	assert.Equal(t, "waves", h.s.tracker.Resources().Effects[0].Key)

	rain := []story.EffectCue{{Key: "rain", Volume: 0.3, Loop: true}}
	h.post(events.Regenerated{Kind: pipeline.KindEffects, Success: true, Data: pipeline.Resources{Effects: rain}})
	triggers := h.fx.Triggers()
	require.Len(t, triggers, 2)
	assert.Equal(t, rain, triggers[1].cues)

	h.post(events.Regenerate{Kind: "music"})
	require.Contains(t, h.obs.warnings[len(h.obs.warnings)-1], "unknown regeneration kind")
}

func TestPollingGate(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(&story.AudioBundle{
		Scene:   story.AudioClip{Data: []byte("scene"), Format: "mp3"},
		Timings: tokens,
	})})
	h.narrator.Start(h.item("scene"))
	h.settle()
	require.True(t, h.s.poller.Running())

	h.post(events.Pause{})
	require.False(t, h.s.poller.Running())
	require.True(t, h.s.Snapshot().Paused)
	h.post(events.Resume{})
	require.True(t, h.s.poller.Running())

	h.post(events.SetTextDisplay{Enabled: false})
	require.False(t, h.s.poller.Running())
	h.post(events.SetTextDisplay{Enabled: true})
	require.True(t, h.s.poller.Running())
}

func TestNoTimingsMeansNoPolling(t *testing.T) {
	h := newHarness(t)
	h.post(events.Ready{Payload: payload(&story.AudioBundle{
		Scene: story.AudioClip{Data: []byte("scene"), Format: "mp3"},
	})})
	h.narrator.Start(h.item("scene"))
	h.settle()
	require.False(t, h.s.poller.Running())
	require.Len(t, h.fx.Triggers(), 1)
}

func TestAudioErrorFallsBackToSynthesis(t *testing.T) {
	synth := tts.NewMockSynthesizer()
	h := newHarness(t, func(o *Options) { o.Synthesizer = synth })
	h.post(events.Ready{Payload: payload(nil)})
	h.post(events.AudioError{Message: "narrator quota exceeded"})
	require.True(t, h.s.Snapshot().TextOnly)

	require.Eventually(t, func() bool {
		h.settle()
		return len(h.narrator.Items()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"the cat sat"}, synth.Texts())
	assert.Equal(t, "scene", h.narrator.Items()[0].Label)
	assert.False(t, h.s.Snapshot().TextOnly)

	h.narrator.Start(h.item("scene"))
	h.settle()
	require.Len(t, h.fx.Triggers(), 1)
}

func TestFailedSynthesisStartsFallbackAtPlayback(t *testing.T) {
	synth := tts.NewMockSynthesizer()
	h := newHarness(t, func(o *Options) { o.Synthesizer = synth })
	p := payload(nil)
	p.Stages[string(pipeline.StageSynthesis)] = string(pipeline.StatusError)
	h.post(events.Ready{Payload: p})

	require.Eventually(t, func() bool {
		h.settle()
		return len(h.narrator.Items()) == 1
	}, time.Second, time.Millisecond)
}

func TestFallbackFailureStaysTextOnly(t *testing.T) {
	synth := tts.NewMockSynthesizer()
	synth.Err = errors.New("no voices installed")
	h := newHarness(t, func(o *Options) { o.Synthesizer = synth })
	h.post(events.Ready{Payload: payload(nil)})
	h.post(events.AudioError{Message: "boom"})

	require.Eventually(t, func() bool {
		h.settle()
		return len(h.obs.warnings) == 2
	}, time.Second, time.Millisecond)
	assert.Contains(t, h.obs.warnings[1], "no voices installed")
	assert.True(t, h.s.Snapshot().TextOnly)
	assert.Empty(t, h.narrator.Items())
}

func TestSceneChangeAbandonsFallback(t *testing.T) {
	synth := tts.NewMockSynthesizer()
	synth.Gate = make(chan struct{})
	h := newHarness(t, func(o *Options) { o.Synthesizer = synth })
	h.post(events.Ready{Payload: payload(nil)})
	h.post(events.AudioError{Message: "boom"})
	require.Eventually(t, func() bool { return len(synth.Texts()) == 1 }, time.Second, time.Millisecond)

	h.post(events.Continue{Choice: "run"})
	h.s.wg.Wait()
	h.settle()
	assert.Empty(t, h.narrator.Items())
	assert.Len(t, h.obs.warnings, 1)
}

func TestCommandFailureIsAWarning(t *testing.T) {
	h := newHarness(t)
	h.cmd.err = errors.New("connection refused")
	h.post(events.Backtrack{})
	require.Eventually(t, func() bool {
		h.settle()
		return len(h.obs.warnings) == 1
	}, time.Second, time.Millisecond)
	assert.Contains(t, h.obs.warnings[0], "backtrack")
	assert.Contains(t, h.obs.warnings[0], "connection refused")
}

func TestRunProcessesInbox(t *testing.T) {
	narrator := audio.NewMockNarrator()
	s := New(Options{
		Narrator:     narrator,
		Effects:      &fakeEffects{},
		Log:          quietLog(),
		PollInterval: 5 * time.Millisecond,
		TextDisplay:  true,
		AutoStart:    true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.Post(events.Ready{Payload: payload(&story.AudioBundle{
		Scene:   story.AudioClip{Data: []byte("scene"), Format: "mp3"},
		Timings: tokens,
	})}))
	require.Eventually(t, func() bool { return len(narrator.Items()) == 1 }, time.Second, time.Millisecond)

	narrator.Start(narrator.Items()[0].Handle)
	narrator.SetPosition(300 * time.Millisecond)
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Playback == playback.ScenePlaying && snap.Word == "cat"
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.False(t, s.Post(events.Pause{}))
}

// gatedFetcher blocks every fetch until the context is cancelled.
type gatedFetcher struct {
	started chan string
}

func (f *gatedFetcher) Fetch(ctx context.Context, key string) (effects.Payload, error) {
	f.started <- key
	<-ctx.Done()
	return effects.Payload{}, ctx.Err()
}

func TestSceneChangeMidFetchPlaysNothing(t *testing.T) {
	fetcher := &gatedFetcher{started: make(chan string, 8)}
	decoder := audio.NewMockDecoder()
	output := audio.NewMockOutput()
	engine := effects.NewEngine(fetcher, decoder, output, effects.Options{FadeStep: time.Millisecond}, quietLog())

	h := newHarness(t, func(o *Options) { o.Effects = engine })
	p := payload(&story.AudioBundle{Scene: story.AudioClip{Data: []byte("scene"), Format: "mp3"}})
	p.Content.Effects = []story.EffectCue{
		{Key: "waves", Volume: 0.6, Loop: true},
		{Key: "gulls", Volume: 0.4},
		{Key: "wind", Volume: 0.5, Loop: true},
	}
	h.post(events.Ready{Payload: p})
	h.narrator.Start(h.item("scene"))
	h.settle()
	<-fetcher.started

	h.post(events.Continue{Choice: "descend"})
	engine.Wait()

	require.Zero(t, output.Audible())
	require.Zero(t, decoder.Live())
	require.Zero(t, engine.Active())
}
