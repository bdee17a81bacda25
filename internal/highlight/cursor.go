package highlight

import (
	"time"

	"taleweaver/internal/domain/story"
)

// DefaultInterval is the polling cadence for the highlight cursor (20 Hz).
const DefaultInterval = 50 * time.Millisecond

// Cursor tracks the highlighted token for one scene's word timings. It is
// not safe for concurrent use; the session actor owns it.
type Cursor struct {
	tokens []story.TimedToken
	prev   int
}

// NewCursor returns a cursor with no tokens loaded.
func NewCursor() *Cursor {
	return &Cursor{prev: -1}
}

// Load replaces the token set wholesale and resets the baseline so the next
// Advance reports the first located index as a change.
func (c *Cursor) Load(tokens []story.TimedToken) {
	c.tokens = append([]story.TimedToken(nil), tokens...)
	c.prev = -1
}

// Clear drops the loaded tokens.
func (c *Cursor) Clear() {
	c.tokens = nil
	c.prev = -1
}

// Loaded reports whether any tokens are available.
func (c *Cursor) Loaded() bool {
	return len(c.tokens) > 0
}

// Index returns the last reported index, or -1.
func (c *Cursor) Index() int {
	return c.prev
}

// Token returns the token at i.
func (c *Cursor) Token(i int) (story.TimedToken, bool) {
	if i < 0 || i >= len(c.tokens) {
		return story.TimedToken{}, false
	}
	return c.tokens[i], true
}

// Advance locates position and reports whether the index moved since the
// previous call.
func (c *Cursor) Advance(position time.Duration) (int, bool) {
	idx := Locate(c.tokens, position.Milliseconds())
	if idx == c.prev {
		return idx, false
	}
	c.prev = idx
	return idx, true
}
