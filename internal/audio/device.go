package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// DefaultSampleRate is the output rate of the speaker.
const DefaultSampleRate = beep.SampleRate(44100)

// Device wraps the process-wide speaker. The speaker is initialized once on
// first use and every stream is resampled to its rate.
type Device struct {
	rate beep.SampleRate
	once sync.Once
	err  error
}

// NewDevice returns a device that plays at rate.
func NewDevice(rate int) *Device {
	if rate <= 0 {
		return &Device{rate: DefaultSampleRate}
	}
	return &Device{rate: beep.SampleRate(rate)}
}

func (d *Device) init() error {
	d.once.Do(func() {
		if err := speaker.Init(d.rate, d.rate.N(time.Second/10)); err != nil {
			d.err = fmt.Errorf("failed to init speaker: %w", err)
		}
	})
	return d.err
}

// Play adds s to the speaker mix.
func (d *Device) Play(s beep.Streamer) error {
	if err := d.init(); err != nil {
		return err
	}
	speaker.Play(s)
	return nil
}

// Lock blocks the audio callback while stream state is mutated.
func (d *Device) Lock() {
	if d.init() == nil {
		speaker.Lock()
	}
}

// Unlock releases Lock.
func (d *Device) Unlock() {
	if d.init() == nil {
		speaker.Unlock()
	}
}

func (d *Device) adapt(s beep.Streamer, from beep.SampleRate) beep.Streamer {
	if from == d.rate {
		return s
	}
	return beep.Resample(4, from, d.rate, s)
}
