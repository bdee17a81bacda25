package colours

import (
	"github.com/fatih/color"

	"taleweaver/internal/pipeline"
)

// Color scheme for the CLI
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Prompt  = color.New(color.FgGreen, color.Bold)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)
	Word    = color.New(color.FgBlack, color.BgYellow)
	Muted   = color.New(color.FgHiBlack)
)

// Status returns the colour for a stage status.
func Status(s pipeline.Status) *color.Color {
	switch s {
	case pipeline.StatusActive:
		return Info
	case pipeline.StatusSuccess:
		return Success
	case pipeline.StatusError:
		return Error
	}
	return Muted
}
