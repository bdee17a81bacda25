package audio

import (
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/sirupsen/logrus"
)

type queued struct {
	handle  Handle
	label   string
	seeker  beep.StreamSeeker
	rate    beep.SampleRate
	stream  beep.Streamer
	started bool
}

type signalKind int

const (
	signalStarted signalKind = iota
	signalFinished
)

type signal struct {
	kind   signalKind
	handle Handle
}

// BeepNarrator is a Narrator backed by a queue streamer on the speaker.
type BeepNarrator struct {
	dev  *Device
	log  *logrus.Entry
	ctrl *beep.Ctrl

	// items is guarded by the speaker lock.
	items []*queued

	mu         sync.Mutex
	next       Handle
	onStarted  map[Handle]func()
	onFinished map[Handle]func()
	pending    []signal
	fired      map[signal]bool
	wake       chan struct{}
	done       chan struct{}
	playing    bool
	closeOnce  sync.Once
}

// NewBeepNarrator creates the narration channel and starts its callback
// dispatcher. The queue is attached to the speaker on first Enqueue.
func NewBeepNarrator(dev *Device, log *logrus.Entry) *BeepNarrator {
	n := &BeepNarrator{
		dev:        dev,
		log:        log,
		onStarted:  make(map[Handle]func()),
		onFinished: make(map[Handle]func()),
		fired:      make(map[signal]bool),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	n.ctrl = &beep.Ctrl{Streamer: beep.StreamerFunc(n.stream)}
	go n.dispatch()
	return n
}

// Enqueue decodes the clip and appends it to the narration queue.
func (n *BeepNarrator) Enqueue(item Item) (Handle, error) {
	buf, err := decodePCM(item.Clip.Data, item.Clip.Format)
	if err != nil {
		return 0, err
	}

	n.mu.Lock()
	n.next++
	h := n.next
	attach := !n.playing
	n.playing = true
	n.mu.Unlock()

	seeker := buf.buf.Streamer(0, buf.buf.Len())
	q := &queued{
		handle: h,
		label:  item.Label,
		seeker: seeker,
		rate:   buf.format.SampleRate,
		stream: n.dev.adapt(seeker, buf.format.SampleRate),
	}

	n.log.WithFields(logrus.Fields{"item": item.Label, "handle": h}).Debug("queued narration")

	if attach {
		n.items = append(n.items, q)
		if err := n.dev.Play(n.ctrl); err != nil {
			n.mu.Lock()
			n.playing = false
			n.mu.Unlock()
			return 0, err
		}
		return h, nil
	}

	n.dev.Lock()
	n.items = append(n.items, q)
	n.dev.Unlock()
	return h, nil
}

// OnItemStarted registers fn to run when h begins playing. If h already
// started, fn is scheduled right away.
func (n *BeepNarrator) OnItemStarted(h Handle, fn func()) {
	n.subscribe(signal{kind: signalStarted, handle: h}, fn)
}

// OnItemFinished registers fn to run when h finishes playing.
func (n *BeepNarrator) OnItemFinished(h Handle, fn func()) {
	n.subscribe(signal{kind: signalFinished, handle: h}, fn)
}

func (n *BeepNarrator) subscribe(s signal, fn func()) {
	n.mu.Lock()
	if s.kind == signalStarted {
		n.onStarted[s.handle] = fn
	} else {
		n.onFinished[s.handle] = fn
	}
	late := n.fired[s]
	delete(n.fired, s)
	n.mu.Unlock()
	if late {
		n.signal(s)
	}
}

// Position implements Narrator.
func (n *BeepNarrator) Position() time.Duration {
	n.dev.Lock()
	defer n.dev.Unlock()
	if len(n.items) == 0 || !n.items[0].started {
		return 0
	}
	head := n.items[0]
	return head.rate.D(head.seeker.Position())
}

// Current implements Narrator.
func (n *BeepNarrator) Current() Handle {
	n.dev.Lock()
	defer n.dev.Unlock()
	if len(n.items) == 0 || !n.items[0].started {
		return 0
	}
	return n.items[0].handle
}

// SetPaused implements Narrator.
func (n *BeepNarrator) SetPaused(paused bool) {
	n.dev.Lock()
	n.ctrl.Paused = paused
	n.dev.Unlock()
}

// Paused implements Narrator.
func (n *BeepNarrator) Paused() bool {
	n.dev.Lock()
	defer n.dev.Unlock()
	return n.ctrl.Paused
}

// Clear implements Narrator.
func (n *BeepNarrator) Clear() {
	n.dev.Lock()
	n.items = nil
	n.dev.Unlock()

	n.mu.Lock()
	n.onStarted = make(map[Handle]func())
	n.onFinished = make(map[Handle]func())
	n.fired = make(map[signal]bool)
	n.pending = nil
	n.mu.Unlock()
}

// Close stops the callback dispatcher.
func (n *BeepNarrator) Close() {
	n.closeOnce.Do(func() { close(n.done) })
}

// stream runs on the speaker goroutine with the speaker lock held.
func (n *BeepNarrator) stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(n.items) == 0 {
			for i := filled; i < len(samples); i++ {
				samples[i] = [2]float64{}
			}
			break
		}
		head := n.items[0]
		if !head.started {
			head.started = true
			n.signal(signal{kind: signalStarted, handle: head.handle})
		}
		got, ok := head.stream.Stream(samples[filled:])
		filled += got
		if !ok || got == 0 {
			n.items = n.items[1:]
			n.signal(signal{kind: signalFinished, handle: head.handle})
		}
	}
	return len(samples), true
}

func (n *BeepNarrator) signal(s signal) {
	n.mu.Lock()
	n.pending = append(n.pending, s)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *BeepNarrator) dispatch() {
	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
		}

		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		fns := make([]func(), 0, len(batch))
		for _, s := range batch {
			var fn func()
			switch s.kind {
			case signalStarted:
				fn = n.onStarted[s.handle]
				delete(n.onStarted, s.handle)
			case signalFinished:
				fn = n.onFinished[s.handle]
				delete(n.onFinished, s.handle)
			}
			if fn == nil {
				n.fired[s] = true
				continue
			}
			fns = append(fns, fn)
		}
		n.mu.Unlock()

		for _, fn := range fns {
			fn()
		}
	}
}
