package highlight

import "time"

// Poller is a start/stop ticker whose channel is nil while stopped, so a
// select on C() simply never fires when polling is off.
type Poller struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewPoller returns a stopped poller. Non-positive intervals fall back to
// DefaultInterval.
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{interval: interval}
}

// IntervalForRate converts a polling frequency in Hz to an interval.
func IntervalForRate(hz float64) time.Duration {
	if hz <= 0 {
		return DefaultInterval
	}
	return time.Duration(float64(time.Second) / hz)
}

// Set starts or stops the poller. It is idempotent.
func (p *Poller) Set(running bool) {
	switch {
	case running && p.ticker == nil:
		p.ticker = time.NewTicker(p.interval)
	case !running && p.ticker != nil:
		p.ticker.Stop()
		p.ticker = nil
	}
}

// Running reports whether the poller is ticking.
func (p *Poller) Running() bool {
	return p.ticker != nil
}

// C returns the tick channel, or nil while stopped.
func (p *Poller) C() <-chan time.Time {
	if p.ticker == nil {
		return nil
	}
	return p.ticker.C
}
