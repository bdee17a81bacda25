package pipeline

import "sync"

// CompletionGuard enforces at-most-once handling of the pipeline's terminal
// ready signal. Its flag is separate from anything the UI shows as "ready"
// and is only cleared by Reset when a new generation begins.
type CompletionGuard struct {
	mu        sync.Mutex
	completed bool
}

// TryComplete reports whether the caller should run the completion side
// effects. The first natural completion wins and later natural completions
// are refused. A retry completion is always honored and arms the guard
// against natural completions that arrive after it.
func (g *CompletionGuard) TryComplete(isRetry bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if isRetry {
		g.completed = true
		return true
	}
	if g.completed {
		return false
	}
	g.completed = true
	return true
}

// Completed reports whether a completion has been accepted.
func (g *CompletionGuard) Completed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completed
}

// Reset re-arms the guard for a new generation.
func (g *CompletionGuard) Reset() {
	g.mu.Lock()
	g.completed = false
	g.mu.Unlock()
}
