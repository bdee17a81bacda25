package playback

import (
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taleweaver/internal/audio"
	"taleweaver/internal/domain/story"
	"taleweaver/internal/events"
)

type harness struct {
	narrator *audio.MockNarrator
	seq      *Sequencer
	inbox    []events.Event
	starts   []Trigger
	startGen []uint64
	ends     int
	// stateAtTrigger records the sequencer state observed inside the hook.
	stateAtTrigger []State
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newHarness() *harness {
	h := &harness{narrator: audio.NewMockNarrator()}
	h.seq = New(h.narrator, func(ev events.Event) { h.inbox = append(h.inbox, ev) }, Hooks{
		SceneStarted: func(gen uint64, via Trigger) {
			h.starts = append(h.starts, via)
			h.startGen = append(h.startGen, gen)
			h.stateAtTrigger = append(h.stateAtTrigger, h.seq.State())
		},
		SceneEnded: func(uint64) { h.ends++ },
	}, quietLog())
	return h
}

// drain delivers narration callbacks to the sequencer the way the actor does.
func (h *harness) drain() {
	for len(h.inbox) > 0 {
		ev := h.inbox[0]
		h.inbox = h.inbox[1:]
		switch e := ev.(type) {
		case events.ItemStarted:
			h.seq.HandleStarted(e)
		case events.ItemFinished:
			h.seq.HandleFinished(e)
		}
	}
}

func clip(name string) story.AudioClip {
	return story.AudioClip{Data: []byte(name), Format: "mp3"}
}

func TestIntroThenSceneStartsOnce(t *testing.T) {
	h := newHarness()
	h.seq.Reset(1)

	require.NoError(t, h.seq.QueueIntro(clip("intro")))
	require.Equal(t, IntroQueued, h.seq.State())
	require.NoError(t, h.seq.QueueScene(clip("scene")))
	require.Equal(t, SceneQueued, h.seq.State())

	items := h.narrator.Items()
	require.Len(t, items, 2)
	require.Equal(t, "intro", items[0].Label)
	require.Equal(t, "scene", items[1].Label)

	h.narrator.Start(items[0].Handle)
	h.drain()
	require.Equal(t, SceneQueued, h.seq.State(), "intro start must not start the scene")
	require.Empty(t, h.starts)
	require.False(t, h.seq.CursorEligible(), "cursor must not poll while the intro plays")

	h.narrator.Finish(items[0].Handle)
	h.narrator.Start(items[1].Handle)
	h.drain()
	require.Equal(t, ScenePlaying, h.seq.State())

	require.False(t, h.seq.FirstWordReached(), "fallback shares the guard with the primary signal")
	require.Equal(t, []Trigger{TriggerItemStarted}, h.starts)
}

func TestFallbackFirstWordStartsScene(t *testing.T) {
	h := newHarness()
	h.seq.Reset(1)
	require.NoError(t, h.seq.QueueScene(clip("scene")))
	require.True(t, h.seq.CursorEligible())

	require.True(t, h.seq.FirstWordReached())
	require.Equal(t, ScenePlaying, h.seq.State())

	// The late primary callback is absorbed by the shared guard.
	h.narrator.Start(h.narrator.Items()[0].Handle)
	h.drain()
	require.Equal(t, []Trigger{TriggerFirstWord}, h.starts)
}

func TestSceneAudibleFollowsNarrator(t *testing.T) {
	h := newHarness()
	h.seq.Reset(1)
	require.NoError(t, h.seq.QueueIntro(clip("intro")))
	require.NoError(t, h.seq.QueueScene(clip("scene")))
	items := h.narrator.Items()

	h.narrator.Play(items[0].Handle)
	require.False(t, h.seq.SceneAudible())

	h.narrator.Finish(items[0].Handle)
	h.drain()
	h.narrator.Play(items[1].Handle)
	require.True(t, h.seq.SceneAudible(), "lost start callback still leaves the scene audible")
	require.True(t, h.seq.CursorEligible())
	require.Equal(t, SceneQueued, h.seq.State())

	require.True(t, h.seq.FirstWordReached())
	require.Equal(t, []Trigger{TriggerFirstWord}, h.starts)
}

func TestSceneEndTriggersCleanupHook(t *testing.T) {
	h := newHarness()
	h.seq.Reset(1)
	require.NoError(t, h.seq.QueueScene(clip("scene")))
	scene := h.narrator.Items()[0].Handle

	h.narrator.Start(scene)
	h.narrator.Finish(scene)
	h.drain()

	require.Equal(t, Ended, h.seq.State())
	require.Equal(t, 1, h.ends)
	require.False(t, h.seq.CursorEligible())
}

func TestOutOfOrderNarrationRejected(t *testing.T) {
	h := newHarness()
	h.seq.Reset(1)
	require.NoError(t, h.seq.QueueScene(clip("scene")))

	require.ErrorIs(t, h.seq.QueueIntro(clip("late intro")), ErrOutOfOrder)
	require.ErrorIs(t, h.seq.QueueScene(clip("dup")), ErrOutOfOrder)
	require.Len(t, h.narrator.Items(), 1)
}

func TestResetDiscardsStaleCallbacks(t *testing.T) {
	h := newHarness()
	h.seq.Reset(1)
	require.NoError(t, h.seq.QueueScene(clip("old scene")))
	stale := h.narrator.Items()[0].Handle
	h.narrator.Start(stale)
	// The callback is in flight when the scene changes.

	h.seq.Reset(2)
	require.Equal(t, Idle, h.seq.State())
	require.Equal(t, 1, h.narrator.Cleared())

	require.NoError(t, h.seq.QueueScene(clip("new scene")))
	h.drain()
	require.Equal(t, SceneQueued, h.seq.State(), "callback from generation 1 must not start generation 2")
	require.Empty(t, h.starts)

	h.narrator.Start(h.narrator.Items()[0].Handle)
	h.drain()
	require.Equal(t, []uint64{2}, h.startGen)
}

func TestEnqueueFailureKeepsState(t *testing.T) {
	h := newHarness()
	h.seq.Reset(1)
	h.narrator.EnqueueErr = assert.AnError

	require.Error(t, h.seq.QueueIntro(clip("intro")))
	require.Equal(t, Idle, h.seq.State())
}

// Effects may only be triggered from ScenePlaying, at most once per
// generation, whatever order the signals arrive in.
func TestStartHookOnlyFromScenePlaying(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 500; round++ {
		h := newHarness()
		gen := uint64(1)
		h.seq.Reset(gen)

		for step := 0; step < 25; step++ {
			switch rng.Intn(8) {
			case 0:
				_ = h.seq.QueueIntro(clip("intro"))
			case 1:
				_ = h.seq.QueueScene(clip("scene"))
			case 2, 3:
				items := h.narrator.Items()
				if len(items) > 0 {
					h.narrator.Start(items[rng.Intn(len(items))].Handle)
				}
			case 4:
				items := h.narrator.Items()
				if len(items) > 0 {
					h.narrator.Finish(items[rng.Intn(len(items))].Handle)
				}
			case 5:
				if h.seq.CursorEligible() {
					h.seq.FirstWordReached()
				}
			case 6:
				h.drain()
			case 7:
				if rng.Intn(4) == 0 {
					gen++
					h.seq.Reset(gen)
				}
			}
		}
		h.drain()

		perGen := map[uint64]int{}
		for i, g := range h.startGen {
			perGen[g]++
			require.Equal(t, ScenePlaying, h.stateAtTrigger[i])
		}
		for g, n := range perGen {
			require.LessOrEqualf(t, n, 1, "round %d generation %d started %d times", round, g, n)
		}
	}
}
