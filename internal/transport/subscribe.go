package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SubscribeOptions tune reconnection behavior.
type SubscribeOptions struct {
	HTTPClient *http.Client
	// MinBackoff is the first reconnection delay; it doubles up to MaxBackoff.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Subscriber follows the pipeline's event stream, reconnecting with backoff
// and resuming from the last seen event id.
type Subscriber struct {
	url    string
	client *http.Client
	minB   time.Duration
	maxB   time.Duration
	log    *logrus.Entry

	lastID string
	retry  time.Duration
}

func NewSubscriber(url string, opts *SubscribeOptions, log *logrus.Entry) *Subscriber {
	if opts == nil {
		opts = &SubscribeOptions{}
	}
	client := opts.HTTPClient
	if client == nil {
		// No overall timeout: the stream stays open.
		client = &http.Client{}
	}
	minB, maxB := opts.MinBackoff, opts.MaxBackoff
	if minB <= 0 {
		minB = 500 * time.Millisecond
	}
	if maxB < minB {
		maxB = 30 * time.Second
	}
	return &Subscriber{url: url, client: client, minB: minB, maxB: maxB, log: log}
}

// LastEventID returns the id of the last event received.
func (s *Subscriber) LastEventID() string {
	return s.lastID
}

// Run streams events into sink until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, sink Sink) error {
	handle := DecodeInto(sink, s.log)
	backoff := s.minB

	for {
		connected, err := s.stream(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.minB
		}
		delay := backoff
		if s.retry > 0 {
			delay = s.retry
		}
		entry := s.log.WithFields(logrus.Fields{"url": s.url, "retry_in": delay, "last_event_id": s.lastID})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("Event stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if !connected {
			backoff *= 2
			if backoff > s.maxB {
				backoff = s.maxB
			}
		}
	}
}

func (s *Subscriber) stream(ctx context.Context, handle func(Message) error) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastID != "" {
		req.Header.Set("Last-Event-ID", s.lastID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("event stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	s.log.WithField("url", s.url).Info("Connected to event stream")

	err = ReadMessages(ctx, resp.Body, func(m Message) error {
		if m.ID != "" {
			s.lastID = m.ID
		}
		if m.Retry > 0 {
			s.retry = m.Retry
		}
		return handle(m)
	})
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return true, err
}

// ReplayOptions control offline playback of a recorded stream.
type ReplayOptions struct {
	// Pace is inserted between events.
	Pace time.Duration
}

// Replay feeds a recorded event stream into sink.
func Replay(ctx context.Context, r io.Reader, sink Sink, opts ReplayOptions, log *logrus.Entry) error {
	handle := DecodeInto(sink, log)
	first := true
	err := ReadMessages(ctx, r, func(m Message) error {
		if !first && opts.Pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Pace):
			}
		}
		first = false
		return handle(m)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to replay events: %w", err)
	}
	return err
}

// ReplayFile opens path and replays it.
func ReplayFile(ctx context.Context, path string, sink Sink, opts ReplayOptions, log *logrus.Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return Replay(ctx, f, sink, opts, log.WithField("recording", path))
}
