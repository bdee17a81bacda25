// Package epoch provides the generation counter used to invalidate stale
// asynchronous work after a scene change.
package epoch

import "sync/atomic"

// Counter is a monotonically increasing generation number. The zero value
// starts at generation 0 and is ready to use.
type Counter struct {
	n atomic.Uint64
}

// Current returns the current generation.
func (c *Counter) Current() uint64 {
	return c.n.Load()
}

// Advance moves to the next generation and returns it.
func (c *Counter) Advance() uint64 {
	return c.n.Add(1)
}

// IsCurrent reports whether gen is still the current generation.
func (c *Counter) IsCurrent(gen uint64) bool {
	return c.n.Load() == gen
}
