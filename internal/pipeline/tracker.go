package pipeline

import (
	"fmt"
	"time"

	"taleweaver/internal/domain/story"
)

// Update is an inbound stage status report.
type Update struct {
	Stage     Stage
	Status    Status
	Detail    string
	Retryable *bool
}

// Progress is the most recent overall progress report.
type Progress struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
	Stage   Stage   `json:"stage,omitempty"`
}

// Tracker holds per-stage status for one generation. It is owned by the
// session actor and is not safe for concurrent use.
type Tracker struct {
	stages    map[Stage]*StageState
	progress  Progress
	failure   string
	resources Resources
	regen     map[Kind]*ResourceState
	now       func() time.Time
}

// NewTracker returns a tracker with every stage pending.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.Reset()
	return t
}

// Reset discards all stage state and sub-resources.
func (t *Tracker) Reset() {
	t.stages = make(map[Stage]*StageState, len(Stages))
	for _, s := range Stages {
		t.stages[s] = &StageState{Stage: s, Status: StatusPending}
	}
	t.progress = Progress{}
	t.failure = ""
	t.resources = Resources{}
	t.regen = make(map[Kind]*ResourceState, len(Kinds))
	for _, k := range Kinds {
		t.regen[k] = &ResourceState{Kind: k}
	}
}

// ApplyStageUpdate records a stage status report and reports whether the
// stage status changed. Re-applying the same status only refreshes the
// detail text. A terminal stage ignores a late pending/active report unless
// a local retry is in flight, since delivery may be reordered.
func (t *Tracker) ApplyStageUpdate(u Update) bool {
	st, ok := t.stages[u.Stage]
	if !ok {
		return false
	}
	if u.Retryable != nil {
		st.Retryable = *u.Retryable
	}
	if u.Detail != "" {
		st.Detail = u.Detail
	}
	if st.Status == u.Status {
		return false
	}
	if st.Status.Terminal() && !u.Status.Terminal() && !st.Retrying {
		return false
	}

	st.Status = u.Status
	st.UpdatedAt = t.now()
	switch u.Status {
	case StatusSuccess:
		st.Error = ""
		st.Retrying = false
	case StatusError:
		st.Retrying = false
		if st.Error == "" {
			st.Error = u.Detail
		}
	}
	return true
}

// ApplyProgress records an overall progress report. Percent never moves
// backwards within a generation.
func (t *Tracker) ApplyProgress(percent float64, message string, stage Stage) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > t.progress.Percent {
		t.progress.Percent = percent
	}
	if message != "" {
		t.progress.Message = message
	}
	if stage != "" {
		t.progress.Stage = stage
		if st, ok := t.stages[stage]; ok && st.Status == StatusPending {
			st.Status = StatusActive
			st.UpdatedAt = t.now()
		}
	}
}

// ApplyError marks a stage failed, or the whole pipeline when no stage is
// named. A stage failure never touches sibling stages.
func (t *Tracker) ApplyError(stage Stage, message string, retryable bool) {
	if stage == "" {
		t.failure = message
		return
	}
	st, ok := t.stages[stage]
	if !ok {
		t.failure = message
		return
	}
	st.Status = StatusError
	st.Error = message
	st.Retryable = retryable
	st.Retrying = false
	st.UpdatedAt = t.now()
}

// Retry resets a failed stage to active when the server marked it retryable.
func (t *Tracker) Retry(stage Stage) error {
	st, ok := t.stages[stage]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if !st.Retryable {
		return fmt.Errorf("%w: %s", ErrNotRetryable, stage)
	}
	st.Status = StatusActive
	st.Error = ""
	st.Retrying = true
	st.UpdatedAt = t.now()
	t.failure = ""
	return nil
}

// ApplyRetryComplete records the outcome of a server-side stage retry.
func (t *Tracker) ApplyRetryComplete(stage Stage, success bool, status Status, message string) {
	st, ok := t.stages[stage]
	if !ok {
		return
	}
	st.Retrying = false
	st.UpdatedAt = t.now()
	if !success {
		st.Status = StatusError
		if message != "" {
			st.Error = message
		}
		return
	}
	if status == "" {
		status = StatusSuccess
	}
	st.Status = status
	st.Error = ""
}

// AllSucceeded reports whether every stage finished successfully.
func (t *Tracker) AllSucceeded() bool {
	for _, s := range Stages {
		if t.stages[s].Status != StatusSuccess {
			return false
		}
	}
	return true
}

// Blocked reports whether a failure is waiting on a retry or abandonment.
func (t *Tracker) Blocked() bool {
	if t.failure != "" {
		return true
	}
	for _, s := range Stages {
		if t.stages[s].Status == StatusError {
			return true
		}
	}
	return false
}

// Failure returns the pipeline-level failure message, if any.
func (t *Tracker) Failure() string {
	return t.failure
}

// Stage returns a copy of one stage's state.
func (t *Tracker) Stage(stage Stage) (StageState, bool) {
	st, ok := t.stages[stage]
	if !ok {
		return StageState{}, false
	}
	return *st, true
}

// Stages returns copies of every stage state in pipeline order.
func (t *Tracker) Stages() []StageState {
	out := make([]StageState, 0, len(Stages))
	for _, s := range Stages {
		out = append(out, *t.stages[s])
	}
	return out
}

// Progress returns the latest progress report.
func (t *Tracker) Progress() Progress {
	return t.progress
}

// AdoptScene seeds the sub-resources from finalized scene content.
func (t *Tracker) AdoptScene(scene story.Scene) {
	t.resources = Resources{
		CoverURL: scene.CoverURL,
		Synopsis: scene.Synopsis,
		Effects:  append([]story.EffectCue(nil), scene.Effects...),
		Voices:   append([]story.Character(nil), scene.Characters...),
	}
}

// AdoptStatuses applies the stage statuses carried by a ready payload.
// Unknown stage or status names are skipped.
func (t *Tracker) AdoptStatuses(statuses map[string]string) {
	for name, raw := range statuses {
		stage, err := ParseStage(name)
		if err != nil {
			continue
		}
		status, err := ParseStatus(raw)
		if err != nil {
			continue
		}
		t.ApplyStageUpdate(Update{Stage: stage, Status: status})
	}
}
