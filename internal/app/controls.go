package app

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"taleweaver/internal/cli/console"
	"taleweaver/internal/cli/scheme/colours"
	"taleweaver/internal/events"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/session"
)

const controlsHelp = `Controls:
  enter        start playback
  p            pause or resume
  t            toggle word highlighting
  y            confirm a scene that finished after a retry
  r <stage>    retry a failed stage
  g <kind>     regenerate art, synopsis, effects or voices
  c <choice>   continue with a choice
  b            go back to the previous scene
  x            cancel generation
  s            show status
  q            quit`

// parseControl maps one line of console input to an intent. quit reports a
// request to stop the session.
func parseControl(line string, snap session.Snapshot) (ev events.Event, quit bool, err error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return events.StartPlayback{}, false, nil
	case "p", "pause", "resume":
		if snap.Paused {
			return events.Resume{}, false, nil
		}
		return events.Pause{}, false, nil
	case "t", "text":
		return events.SetTextDisplay{Enabled: !snap.TextDisplay}, false, nil
	case "y", "confirm":
		return events.ConfirmReady{}, false, nil
	case "r", "retry":
		stage, err := pipeline.ParseStage(arg)
		if err != nil {
			return nil, false, err
		}
		return events.RetryStage{Stage: stage}, false, nil
	case "g", "regenerate":
		kind, err := pipeline.ParseKind(arg)
		if err != nil {
			return nil, false, err
		}
		return events.Regenerate{Kind: kind}, false, nil
	case "c", "continue":
		if arg == "" {
			return nil, false, fmt.Errorf("continue needs a choice")
		}
		return events.Continue{Choice: arg}, false, nil
	case "b", "back":
		return events.Backtrack{}, false, nil
	case "x", "cancel":
		return events.Cancel{}, false, nil
	case "s", "status", "?", "h", "help":
		return nil, false, nil
	case "q", "quit":
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("unknown control %q", cmd)
}

// readControls turns console lines into session intents until ctx ends or
// the user quits.
func (w *Weaver) readControls(ctx context.Context, sess *session.Session, stop context.CancelFunc) {
	colours.Muted.Fprintln(w.out, controlsHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(w.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			ev, quit, err := parseControl(line, sess.Snapshot())
			switch {
			case err != nil:
				colours.Warning.Fprintln(w.out, err.Error())
			case quit:
				colours.Warning.Fprintln(w.out, "Goodbye!")
				stop()
				return
			case ev == nil:
				fmt.Fprintln(w.out, console.Summary(sess.Snapshot()))
			default:
				sess.Post(ev)
			}
		}
	}
}
