package events

import "taleweaver/internal/pipeline"

// StartPlayback asks the session to begin playback of a ready scene.
type StartPlayback struct{}

// Cancel abandons the current generation.
type Cancel struct{}

// ConfirmReady is the user's explicit re-ready after a retry.
type ConfirmReady struct{}

// RetryStage asks for a failed stage to be retried.
type RetryStage struct {
	Stage pipeline.Stage
}

// Regenerate asks for one sub-resource to be regenerated.
type Regenerate struct {
	Kind pipeline.Kind
}

// Continue submits a choice and starts the next scene.
type Continue struct {
	Choice string
}

// Backtrack returns to the previous scene.
type Backtrack struct{}

// Pause pauses narration.
type Pause struct{}

// Resume resumes narration.
type Resume struct{}

// SetTextDisplay toggles word highlighting.
type SetTextDisplay struct {
	Enabled bool
}

// ItemStarted is raised by the narration channel when a queued item begins.
type ItemStarted struct {
	Generation uint64
	Handle     uint64
}

// ItemFinished is raised by the narration channel when a queued item ends.
type ItemFinished struct {
	Generation uint64
	Handle     uint64
}

// CommandFailed reports an outbound command that could not be delivered.
type CommandFailed struct {
	Command Command
	Err     error
}

// FallbackFailed reports that local narration synthesis failed.
type FallbackFailed struct {
	Generation uint64
	Err        error
}

func (StartPlayback) Name() string  { return "start-playback" }
func (Cancel) Name() string         { return "cancel" }
func (ConfirmReady) Name() string   { return "confirm-ready" }
func (RetryStage) Name() string     { return "retry-stage" }
func (Regenerate) Name() string     { return "regenerate" }
func (Continue) Name() string       { return "continue" }
func (Backtrack) Name() string      { return "backtrack" }
func (Pause) Name() string          { return "pause" }
func (Resume) Name() string         { return "resume" }
func (SetTextDisplay) Name() string { return "set-text-display" }
func (ItemStarted) Name() string    { return "item-started" }
func (ItemFinished) Name() string   { return "item-finished" }
func (CommandFailed) Name() string  { return "command-failed" }
func (FallbackFailed) Name() string { return "fallback-failed" }

func (StartPlayback) isEvent()  {}
func (Cancel) isEvent()         {}
func (ConfirmReady) isEvent()   {}
func (RetryStage) isEvent()     {}
func (Regenerate) isEvent()     {}
func (Continue) isEvent()       {}
func (Backtrack) isEvent()      {}
func (Pause) isEvent()          {}
func (Resume) isEvent()         {}
func (SetTextDisplay) isEvent() {}
func (ItemStarted) isEvent()    {}
func (ItemFinished) isEvent()   {}
func (CommandFailed) isEvent()  {}
func (FallbackFailed) isEvent() {}
