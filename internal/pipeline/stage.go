// Package pipeline tracks the status of the remote generation pipeline and
// guards its terminal ready signal.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownStage is returned for stage names outside the pipeline.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrUnknownStatus is returned for status names outside the stage lifecycle.
	ErrUnknownStatus = errors.New("unknown stage status")
	// ErrNotRetryable is returned when a retry is requested for a stage the
	// server did not mark retryable.
	ErrNotRetryable = errors.New("stage is not retryable")
	// ErrUnknownKind is returned for regeneration kinds the pipeline does not support.
	ErrUnknownKind = errors.New("unknown regeneration kind")
)

// Stage is one discrete unit of the generation pipeline.
type Stage string

const (
	StageContent   Stage = "content"
	StageVoices    Stage = "voices"
	StageEffects   Stage = "effects"
	StageArt       Stage = "art"
	StageQuality   Stage = "quality"
	StageSynthesis Stage = "synthesis"
)

// Stages lists every pipeline stage in execution order.
var Stages = []Stage{StageContent, StageVoices, StageEffects, StageArt, StageQuality, StageSynthesis}

func (s Stage) String() string {
	return string(s)
}

// ParseStage validates a wire stage name.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Status is the lifecycle position of a stage.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ParseStatus validates a wire status name.
func ParseStatus(name string) (Status, error) {
	switch Status(name) {
	case StatusPending, StatusActive, StatusSuccess, StatusError:
		return Status(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}

// Terminal reports whether the status ends the stage until a retry.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// StageState is the last known state of one stage.
type StageState struct {
	Stage     Stage     `json:"stage"`
	Status    Status    `json:"status"`
	Retryable bool      `json:"retryable"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	Retrying  bool      `json:"retrying,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
