// Package effects fetches and plays ambient sound cues for a scene.
package effects

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taleweaver/internal/audio"
	"taleweaver/internal/domain/story"
)

// Payload is an encoded cue fetched from the cue service.
type Payload struct {
	Data   []byte
	Format string
}

// Fetcher resolves a cue key into its encoded audio.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (Payload, error)
}

// Options tune the engine's timing.
type Options struct {
	// FadeIn is how long a cue takes to ramp from silence to its volume.
	FadeIn time.Duration
	// FadeStep is the interval between volume updates while fading.
	FadeStep time.Duration
	// CueDelay separates consecutive cues of a batch.
	CueDelay time.Duration
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{
	FadeIn:   1500 * time.Millisecond,
	FadeStep: 50 * time.Millisecond,
	CueDelay: 250 * time.Millisecond,
}

type voice struct {
	cue   story.EffectCue
	voice audio.Voice
	buf   audio.Buffer
	done  chan struct{}
}

func (v *voice) stop() {
	close(v.done)
	v.voice.Stop()
	v.buf.Release()
}

// Engine owns every ambient voice. At most one batch is active at a time and
// each batch is bound to the engine generation current when it started.
type Engine struct {
	fetcher Fetcher
	decoder audio.Decoder
	output  audio.Output
	opts    Options
	log     *logrus.Entry

	mu     sync.Mutex
	gen    uint64
	epoch  uint64
	cancel context.CancelFunc
	nextID uint64
	voices map[uint64]*voice
	wg     sync.WaitGroup
}

// NewEngine returns an engine with no active cues.
func NewEngine(fetcher Fetcher, decoder audio.Decoder, output audio.Output, opts Options, log *logrus.Entry) *Engine {
	if opts.FadeIn < 0 {
		opts.FadeIn = 0
	}
	if opts.FadeStep <= 0 {
		opts.FadeStep = DefaultOptions.FadeStep
	}
	if opts.CueDelay < 0 {
		opts.CueDelay = 0
	}
	return &Engine{
		fetcher: fetcher,
		decoder: decoder,
		output:  output,
		opts:    opts,
		log:     log,
		voices:  make(map[uint64]*voice),
	}
}

// Trigger stops whatever is playing and starts cues in the background, one
// after another. epoch is the session generation the cues belong to; a
// trigger for an older epoch than the last one seen is ignored and leaves the
// running batch untouched.
func (e *Engine) Trigger(ctx context.Context, cues []story.EffectCue, epoch uint64) {
	e.mu.Lock()
	if epoch < e.epoch {
		e.mu.Unlock()
		e.log.WithField("epoch", epoch).Debug("ignoring effects for superseded epoch")
		return
	}
	stopped := e.stopLocked()
	e.epoch = epoch
	gen := e.gen
	batchCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	for _, v := range stopped {
		v.stop()
	}

	batch := append([]story.EffectCue(nil), cues...)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(batchCtx, gen, batch)
	}()
}

// StopAll aborts in-flight fetches, invalidates running batches and stops and
// releases every voice and decoded buffer. It is safe with nothing active.
func (e *Engine) StopAll() {
	e.mu.Lock()
	stopped := e.stopLocked()
	e.mu.Unlock()

	for _, v := range stopped {
		v.stop()
	}
}

// stopLocked cancels the running batch, advances the generation and detaches
// every voice. The caller stops the returned voices after unlocking.
func (e *Engine) stopLocked() map[uint64]*voice {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	voices := e.voices
	e.voices = make(map[uint64]*voice)
	return voices
}

// Active returns the number of voices still sounding. A one-shot cue leaves
// the count once it plays to its end.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// Allocated returns the number of decoded buffers the engine still holds.
// Every buffer is owned by exactly one voice.
func (e *Engine) Allocated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, v := range e.voices {
		if v.buf != nil {
			n++
		}
	}
	return n
}

// Wait blocks until every background batch has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == gen
}

func (e *Engine) run(ctx context.Context, gen uint64, cues []story.EffectCue) {
	for i, cue := range cues {
		if i > 0 && e.opts.CueDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.opts.CueDelay):
			}
		}
		if !e.current(gen) {
			return
		}
		e.playCue(ctx, gen, cue)
	}
}

func (e *Engine) playCue(ctx context.Context, gen uint64, cue story.EffectCue) {
	log := e.log.WithFields(logrus.Fields{"cue": cue.Key, "generation": gen})

	payload, err := e.fetcher.Fetch(ctx, cue.Key)
	if !e.current(gen) {
		log.Debug("dropping cue fetched for a stale generation")
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.WithError(err).Warn("failed to fetch effect cue")
		return
	}

	buf, err := e.decoder.Decode(payload.Data, payload.Format)
	if err != nil {
		log.WithError(err).Warn("failed to decode effect cue")
		return
	}

	// Pre-play checkpoint: the generation check, starting the voice and
	// registering it happen under one lock so StopAll cannot slip between them.
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		buf.Release()
		log.Debug("dropping cue decoded for a stale generation")
		return
	}
	out, err := e.output.Start(buf, cue.Loop)
	if err != nil {
		e.mu.Unlock()
		buf.Release()
		log.WithError(err).Warn("failed to play effect cue")
		return
	}
	e.nextID++
	id := e.nextID
	v := &voice{cue: cue, voice: out, buf: buf, done: make(chan struct{})}
	e.voices[id] = v
	e.fade(v)
	e.mu.Unlock()

	go e.reap(id, v)

	log.WithField("volume", cue.ClampedVolume()).Debug("effect cue started")
}

// fade ramps the voice linearly from silence to its target volume. Called
// with e.mu held.
func (e *Engine) fade(v *voice) {
	target := v.cue.ClampedVolume()
	if e.opts.FadeIn <= 0 {
		v.voice.SetVolume(target)
		return
	}
	steps := int(e.opts.FadeIn / e.opts.FadeStep)
	if steps < 1 {
		steps = 1
	}
	v.voice.SetVolume(0)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.opts.FadeStep)
		defer ticker.Stop()
		for i := 1; i <= steps; i++ {
			select {
			case <-v.done:
				return
			case <-ticker.C:
			}
			v.voice.SetVolume(target * float64(i) / float64(steps))
		}
	}()
}

// reap releases a one-shot voice once it plays out. A voice detached by
// StopAll first is left to StopAll.
func (e *Engine) reap(id uint64, v *voice) {
	select {
	case <-v.done:
		return
	case <-v.voice.Done():
	}
	e.mu.Lock()
	owned := e.voices[id] == v
	if owned {
		delete(e.voices, id)
	}
	e.mu.Unlock()
	if owned {
		v.stop()
	}
}
