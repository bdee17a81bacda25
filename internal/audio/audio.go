// Package audio provides the two output paths of a session: a serialized
// narration channel and a pool of independently playable ambient voices.
package audio

import (
	"errors"
	"time"

	"taleweaver/internal/domain/story"
)

var (
	// ErrUnsupportedFormat is returned for payloads that are neither mp3 nor wav.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrReleased is returned when a released buffer is played.
	ErrReleased = errors.New("audio buffer released")
)

// Handle identifies one item queued on the narration channel. Zero means none.
type Handle uint64

// Item is one narration clip to queue.
type Item struct {
	Label string
	Clip  story.AudioClip
}

// Narrator is the single FIFO narration channel. Items play one at a time in
// the order they were enqueued. Callbacks run on a dispatcher goroutine, never
// inside the audio callback, and are delivered in playback order.
type Narrator interface {
	Enqueue(item Item) (Handle, error)
	OnItemStarted(h Handle, fn func())
	OnItemFinished(h Handle, fn func())
	// Position is the playback position inside the current item.
	Position() time.Duration
	// Current returns the handle of the item being played, or zero.
	Current() Handle
	SetPaused(paused bool)
	Paused() bool
	// Clear drops every queued item, including the one playing, without
	// firing its finished callback.
	Clear()
}

// Buffer is a decoded effect payload. Release frees the decoded samples.
type Buffer interface {
	Release()
}

// Decoder turns an encoded payload into a Buffer.
type Decoder interface {
	Decode(data []byte, format string) (Buffer, error)
}

// Voice is one playing ambient effect.
type Voice interface {
	// SetVolume sets a linear volume in 0..1.
	SetVolume(v float64)
	// Stop silences the voice immediately. It is idempotent.
	Stop()
	// Done is closed when a non-looping voice plays to its end. It is not
	// closed by Stop.
	Done() <-chan struct{}
}

// Output starts ambient voices. Voices start silent.
type Output interface {
	Start(buf Buffer, loop bool) (Voice, error)
}
