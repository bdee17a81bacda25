package audio

import (
	"errors"
	"sync"
	"time"
)

// MockItem is one item recorded by MockNarrator.
type MockItem struct {
	Handle Handle
	Label  string
}

// MockNarrator is an in-memory Narrator. Tests drive playback with Start,
// Finish and SetPosition; callbacks run synchronously on the caller.
type MockNarrator struct {
	mu       sync.Mutex
	next     Handle
	items    []MockItem
	started  map[Handle]func()
	finished map[Handle]func()
	position time.Duration
	current  Handle
	paused   bool
	cleared  int

	// EnqueueErr, when set, is returned by Enqueue.
	EnqueueErr error
}

// NewMockNarrator returns an empty MockNarrator.
func NewMockNarrator() *MockNarrator {
	return &MockNarrator{
		started:  make(map[Handle]func()),
		finished: make(map[Handle]func()),
	}
}

func (m *MockNarrator) Enqueue(item Item) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return 0, m.EnqueueErr
	}
	m.next++
	m.items = append(m.items, MockItem{Handle: m.next, Label: item.Label})
	return m.next, nil
}

func (m *MockNarrator) OnItemStarted(h Handle, fn func()) {
	m.mu.Lock()
	m.started[h] = fn
	m.mu.Unlock()
}

func (m *MockNarrator) OnItemFinished(h Handle, fn func()) {
	m.mu.Lock()
	m.finished[h] = fn
	m.mu.Unlock()
}

func (m *MockNarrator) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *MockNarrator) Current() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockNarrator) SetPaused(paused bool) {
	m.mu.Lock()
	m.paused = paused
	m.mu.Unlock()
}

func (m *MockNarrator) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *MockNarrator) Clear() {
	m.mu.Lock()
	m.items = nil
	m.started = make(map[Handle]func())
	m.finished = make(map[Handle]func())
	m.current = 0
	m.position = 0
	m.cleared++
	m.mu.Unlock()
}

// Items returns the queued items.
func (m *MockNarrator) Items() []MockItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockItem(nil), m.items...)
}

// Cleared returns how many times Clear ran.
func (m *MockNarrator) Cleared() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// Start marks h as playing and fires its started callback.
func (m *MockNarrator) Start(h Handle) {
	m.mu.Lock()
	m.current = h
	m.position = 0
	fn := m.started[h]
	delete(m.started, h)
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Play marks h as playing without firing its started callback, as when the
// callback is lost.
func (m *MockNarrator) Play(h Handle) {
	m.mu.Lock()
	m.current = h
	m.position = 0
	m.mu.Unlock()
}

// Finish ends h and fires its finished callback.
func (m *MockNarrator) Finish(h Handle) {
	m.mu.Lock()
	if m.current == h {
		m.current = 0
	}
	fn := m.finished[h]
	delete(m.finished, h)
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetPosition moves the playback position of the current item.
func (m *MockNarrator) SetPosition(d time.Duration) {
	m.mu.Lock()
	m.position = d
	m.mu.Unlock()
}

// ErrMockDecode is returned by MockDecoder for payloads marked as corrupt.
var ErrMockDecode = errors.New("mock decode failure")

// MockDecoder produces MockBuffers and counts live allocations.
type MockDecoder struct {
	mu      sync.Mutex
	live    int
	decoded int
	corrupt map[string]bool
}

// NewMockDecoder returns a decoder that fails for the listed payloads.
func NewMockDecoder(corrupt ...string) *MockDecoder {
	d := &MockDecoder{corrupt: make(map[string]bool)}
	for _, c := range corrupt {
		d.corrupt[c] = true
	}
	return d
}

func (d *MockDecoder) Decode(data []byte, format string) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.corrupt[string(data)] {
		return nil, ErrMockDecode
	}
	d.live++
	d.decoded++
	return &MockBuffer{owner: d, Payload: string(data)}, nil
}

// Live returns the number of decoded buffers not yet released.
func (d *MockDecoder) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Decoded returns the total number of successful decodes.
func (d *MockDecoder) Decoded() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decoded
}

// MockBuffer is a Buffer produced by MockDecoder.
type MockBuffer struct {
	owner    *MockDecoder
	once     sync.Once
	Payload  string
	released bool
}

func (b *MockBuffer) Release() {
	b.once.Do(func() {
		b.owner.mu.Lock()
		b.owner.live--
		b.released = true
		b.owner.mu.Unlock()
	})
}

// MockOutput records started voices.
type MockOutput struct {
	mu     sync.Mutex
	voices []*MockVoice

	// StartErr, when set, is returned by Start.
	StartErr error
}

// NewMockOutput returns an empty MockOutput.
func NewMockOutput() *MockOutput {
	return &MockOutput{}
}

func (o *MockOutput) Start(buf Buffer, loop bool) (Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.StartErr != nil {
		return nil, o.StartErr
	}
	v := &MockVoice{Loop: loop, done: make(chan struct{})}
	if mb, ok := buf.(*MockBuffer); ok {
		v.Payload = mb.Payload
	}
	o.voices = append(o.voices, v)
	return v, nil
}

// Voices returns every voice started so far.
func (o *MockOutput) Voices() []*MockVoice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*MockVoice(nil), o.voices...)
}

// Playing returns the number of voices not stopped.
func (o *MockOutput) Playing() int {
	n := 0
	for _, v := range o.Voices() {
		if !v.Stopped() {
			n++
		}
	}
	return n
}

// Audible returns the number of voices that were ever set above zero volume.
func (o *MockOutput) Audible() int {
	n := 0
	for _, v := range o.Voices() {
		if v.Peak() > 0 {
			n++
		}
	}
	return n
}

// MockVoice records volume changes.
type MockVoice struct {
	mu       sync.Mutex
	Loop     bool
	Payload  string
	volumes  []float64
	stopped  bool
	done     chan struct{}
	finished sync.Once
}

func (v *MockVoice) SetVolume(level float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.stopped {
		v.volumes = append(v.volumes, level)
	}
}

func (v *MockVoice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
}

func (v *MockVoice) Done() <-chan struct{} {
	return v.done
}

// Finish simulates the voice playing to its end.
func (v *MockVoice) Finish() {
	v.finished.Do(func() { close(v.done) })
}

// Stopped reports whether Stop ran.
func (v *MockVoice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// Volumes returns every volume set on the voice.
func (v *MockVoice) Volumes() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]float64(nil), v.volumes...)
}

// Peak returns the highest volume set on the voice.
func (v *MockVoice) Peak() float64 {
	peak := 0.0
	for _, vol := range v.Volumes() {
		if vol > peak {
			peak = vol
		}
	}
	return peak
}
