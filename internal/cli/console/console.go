// Package console renders session notifications to a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"taleweaver/internal/cli/scheme/colours"
	"taleweaver/internal/domain/story"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/playback"
	"taleweaver/internal/session"
)

// Observer prints session changes. It implements session.Observer.
type Observer struct {
	mu       sync.Mutex
	out      io.Writer
	lastPct  int
	lastWord int
}

var _ session.Observer = (*Observer)(nil)

func New(out io.Writer) *Observer {
	return &Observer{out: out, lastPct: -1, lastWord: -1}
}

func (o *Observer) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, format, args...)
}

func (o *Observer) StageChanged(st pipeline.StageState) {
	line := fmt.Sprintf("%-10s %s", st.Stage, colours.Status(st.Status).Sprint(st.Status))
	if st.Error != "" {
		line += " " + colours.Error.Sprint(st.Error)
	} else if st.Detail != "" {
		line += " " + colours.Muted.Sprint(st.Detail)
	}
	o.printf("  %s\n", line)
}

func (o *Observer) ProgressChanged(p pipeline.Progress) {
	pct := int(p.Percent)
	o.mu.Lock()
	if pct/10 == o.lastPct/10 && o.lastPct >= 0 {
		o.mu.Unlock()
		return
	}
	o.lastPct = pct
	o.mu.Unlock()
	o.printf("%s %s\n", colours.Info.Sprintf("[%3d%%]", pct), p.Message)
}

func (o *Observer) Warning(msg string) {
	o.printf("%s\n", colours.Warning.Sprint("! "+msg))
}

func (o *Observer) Blocked(msg string) {
	o.printf("%s\n", colours.Error.Sprint("Generation stopped: "+msg))
}

func (o *Observer) SceneReady(scene story.Scene) {
	o.printf("\n%s\n", colours.Title.Sprint(scene.Title))
	if scene.Synopsis != "" {
		o.printf("%s\n", colours.Muted.Sprint(scene.Synopsis))
	}
}

func (o *Observer) EnteredPlayback(scene story.Scene) {
	o.mu.Lock()
	o.lastWord = -1
	o.mu.Unlock()
	o.printf("%s\n", colours.Success.Sprint("Now playing"))
}

func (o *Observer) SceneStarted(epoch uint64, via playback.Trigger) {
	if via == playback.TriggerFirstWord {
		o.printf("%s\n", colours.Muted.Sprint("(scene narration detected from word timings)"))
	}
}

func (o *Observer) SceneEnded(epoch uint64) {
	o.printf("\n%s\n", colours.Prompt.Sprint("The scene has ended."))
}

func (o *Observer) WordHighlighted(index int, tok story.TimedToken) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if index == o.lastWord {
		return
	}
	o.lastWord = index
	fmt.Fprintf(o.out, "%s ", colours.Word.Sprint(tok.Text))
}

// StageTable renders the stage status table.
func StageTable(stages []pipeline.StageState) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Stage", "Status", "Retryable", "Detail"})
	for _, st := range stages {
		retry := ""
		if st.Retryable {
			retry = "yes"
		}
		detail := st.Detail
		if st.Error != "" {
			detail = st.Error
		}
		if st.Retrying {
			detail = strings.TrimSpace("retrying " + detail)
		}
		tw.AppendRow(table.Row{st.Stage, colours.Status(st.Status).Sprint(st.Status), retry, detail})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignCenter, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// Summary renders a snapshot as a stage table followed by the playback state.
func Summary(s session.Snapshot) string {
	var b strings.Builder
	if s.Title != "" {
		b.WriteString(colours.Title.Sprint(s.Title))
		b.WriteString("\n")
	}
	b.WriteString(StageTable(s.Stages))
	b.WriteString("\n")
	fmt.Fprintf(&b, "phase %s, playback %s, epoch %d, %d%%", s.Phase, s.Playback, s.Epoch, int(s.Progress.Percent))
	if s.ActiveEffects > 0 {
		fmt.Fprintf(&b, ", %d effects", s.ActiveEffects)
	}
	if s.TextOnly {
		b.WriteString(", text only")
	}
	if s.Failure != "" {
		b.WriteString("\n")
		b.WriteString(colours.Error.Sprint(s.Failure))
	}
	for _, w := range s.Warnings {
		b.WriteString("\n")
		b.WriteString(colours.Warning.Sprint("! " + w))
	}
	return b.String()
}
