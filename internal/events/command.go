package events

import (
	"github.com/google/uuid"

	"taleweaver/internal/pipeline"
)

// Outbound command names.
const (
	CmdRetryStage    = "retry-stage"
	CmdRegenerate    = "regenerate"
	CmdStartPlayback = "start-playback"
	CmdCancel        = "cancel"
	CmdConfirmReady  = "confirm-ready"
	CmdContinue      = "continue"
	CmdBacktrack     = "backtrack"
)

// Command is sent from a session to the generation pipeline.
type Command struct {
	ID         uuid.UUID      `json:"id"`
	Session    uuid.UUID      `json:"session"`
	Name       string         `json:"name"`
	Generation uint64         `json:"generation"`
	Stage      pipeline.Stage `json:"stage,omitempty"`
	Kind       pipeline.Kind  `json:"kind,omitempty"`
	Choice     string         `json:"choice,omitempty"`
}

// NewCommand builds a command with a fresh id.
func NewCommand(session uuid.UUID, name string, generation uint64) Command {
	return Command{
		ID:         uuid.New(),
		Session:    session,
		Name:       name,
		Generation: generation,
	}
}
