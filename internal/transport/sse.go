// Package transport connects a session to the outside world: the pipeline's
// named-event stream, an HTTP ingress and the outbound command channel.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"taleweaver/internal/events"
)

// Narration payloads arrive inline as base64, so lines can be large.
const maxLineBytes = 64 << 20

// Message is one dispatched server-sent event.
type Message struct {
	ID    string
	Event string
	Data  string
	// Retry is the reconnection delay requested by the server, if any.
	Retry time.Duration
}

// ReadMessages parses server-sent event framing from r and calls fn for every
// dispatched message. It returns nil at EOF, or the first error from fn.
func ReadMessages(ctx context.Context, r io.Reader, fn func(Message) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		msg  Message
		data strings.Builder
		seen bool
	)
	dispatch := func() error {
		defer func() {
			msg = Message{ID: msg.ID}
			data.Reset()
			seen = false
		}()
		if !seen {
			return nil
		}
		msg.Data = strings.TrimSuffix(data.String(), "\n")
		if msg.Event == "" {
			msg.Event = "message"
		}
		return fn(msg)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			msg.Event = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			seen = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				msg.ID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				msg.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read event stream: %w", err)
	}
	return dispatch()
}

// Sink receives decoded events.
type Sink func(events.Event)

// DecodeInto returns a message handler that decodes pipeline events and hands
// them to sink. Unknown or malformed events are logged and skipped.
func DecodeInto(sink Sink, log *logrus.Entry) func(Message) error {
	return func(m Message) error {
		ev, err := events.Decode(m.Event, []byte(m.Data))
		if err != nil {
			entry := log.WithError(err).WithFields(logrus.Fields{"event": m.Event, "id": m.ID})
			if errors.Is(err, events.ErrUnknownEvent) {
				entry.Debug("Skipping unknown event")
			} else {
				entry.Warn("Skipping malformed event")
			}
			return nil
		}
		sink(ev)
		return nil
	}
}
