package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

// BeepOutput plays ambient voices on the shared speaker mix.
type BeepOutput struct {
	dev *Device
}

// NewBeepOutput returns an Output on dev.
func NewBeepOutput(dev *Device) *BeepOutput {
	return &BeepOutput{dev: dev}
}

// Start implements Output. The voice starts silent.
func (o *BeepOutput) Start(buf Buffer, loop bool) (Voice, error) {
	pcm, ok := buf.(*PCMBuffer)
	if !ok {
		return nil, fmt.Errorf("failed to start voice: unexpected buffer %T", buf)
	}
	if pcm.buf == nil {
		return nil, ErrReleased
	}

	v := &beepVoice{dev: o.dev, done: make(chan struct{})}
	seeker := pcm.buf.Streamer(0, pcm.buf.Len())
	var s beep.Streamer = seeker
	if loop {
		s = beep.Loop(-1, seeker)
	} else {
		s = beep.Seq(seeker, beep.Callback(func() { close(v.done) }))
	}
	vol := &effects.Volume{
		Streamer: o.dev.adapt(s, pcm.format.SampleRate),
		Base:     2,
		Silent:   true,
	}
	v.vol = vol
	v.ctrl = &beep.Ctrl{Streamer: vol}
	if err := o.dev.Play(v.ctrl); err != nil {
		return nil, err
	}
	return v, nil
}

type beepVoice struct {
	dev     *Device
	ctrl    *beep.Ctrl
	vol     *effects.Volume
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func (v *beepVoice) Done() <-chan struct{} {
	return v.done
}

func (v *beepVoice) SetVolume(level float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		return
	}
	v.dev.Lock()
	if level <= 0 {
		v.vol.Silent = true
	} else {
		v.vol.Silent = false
		v.vol.Volume = math.Log2(math.Min(level, 1))
	}
	v.dev.Unlock()
}

// Stop detaches the streamer; the speaker mixer drops a Ctrl with a nil
// streamer on its next pass.
func (v *beepVoice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		return
	}
	v.stopped = true
	v.dev.Lock()
	v.ctrl.Streamer = nil
	v.dev.Unlock()
}
