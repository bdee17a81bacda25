// Package app wires configuration, audio, effects, narration fallback and
// transport into runnable listening sessions behind the CLI commands.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taleweaver/internal/audio"
	"taleweaver/internal/cli/console"
	"taleweaver/internal/cli/scheme/colours"
	"taleweaver/internal/config"
	"taleweaver/internal/domain/story"
	"taleweaver/internal/effects"
	"taleweaver/internal/events"
	"taleweaver/internal/highlight"
	"taleweaver/internal/narration/tts"
	"taleweaver/internal/session"
	"taleweaver/internal/transport"
)

// Weaver is the application behind the CLI.
type Weaver struct {
	cfg config.Config
	log *logrus.Entry
	in  io.Reader
	out io.Writer

	ctx    context.Context
	Cancel context.CancelFunc
}

func New(cfg config.Config, log *logrus.Entry) *Weaver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Weaver{
		cfg:    cfg,
		log:    log,
		in:     os.Stdin,
		out:    os.Stdout,
		ctx:    ctx,
		Cancel: cancel,
	}
}

// runtime is one session with the audio and effects it drives.
type runtime struct {
	session  *session.Session
	narrator *audio.BeepNarrator
	engine   *effects.Engine
	synth    tts.Synthesizer
}

func (r *runtime) close() {
	r.engine.StopAll()
	r.engine.Wait()
	r.narrator.Close()
	if c, ok := r.synth.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func (w *Weaver) newRuntime(commander session.Commander) *runtime {
	dev := audio.NewDevice(0)
	narrator := audio.NewBeepNarrator(dev, w.log.WithField("component", "narrator"))

	fetcher := effects.NewHTTPFetcher(w.cfg.Effects.URL, &effects.HTTPOptions{Timeout: w.cfg.Effects.FetchTimeout})
	cache := effects.NewCueCache(fetcher, w.cfg.Effects.CacheDir, w.cfg.Effects.CacheMaxAge, w.log.WithField("component", "cue-cache"))
	engine := effects.NewEngine(cache, audio.BeepDecoder{}, audio.NewBeepOutput(dev), effects.Options{
		FadeIn:   w.cfg.Effects.FadeIn,
		FadeStep: w.cfg.Effects.FadeStep,
		CueDelay: w.cfg.Effects.CueDelay,
	}, w.log.WithField("component", "effects"))

	synth, err := tts.NewSynthesizer(w.ctx, tts.Config{
		Type:     w.cfg.Narration.Fallback,
		Voice:    w.cfg.Narration.Voice,
		Speed:    w.cfg.Narration.Speed,
		Volume:   w.cfg.Narration.Volume,
		CacheDir: w.cfg.Narration.CacheDir,
	}, w.log.WithField("component", "tts"))
	if err != nil {
		w.log.WithError(err).Warn("Fallback narration disabled")
		synth = nil
	}

	sess := session.New(session.Options{
		Narrator:     narrator,
		Effects:      engine,
		Commander:    commander,
		Synthesizer:  synth,
		Observer:     console.New(w.out),
		Log:          w.log.WithField("component", "session"),
		PollInterval: w.cfg.Highlight.PollInterval(),
		TextDisplay:  w.cfg.Highlight.Enabled,
		AutoStart:    w.cfg.Session.AutoStart,
	})
	return &runtime{session: sess, narrator: narrator, engine: engine, synth: synth}
}

func (w *Weaver) ShowWelcome() {
	fmt.Fprintln(w.out)
	colours.Title.Fprintln(w.out, "taleweaver")
	fmt.Fprintln(w.out)
	colours.Info.Fprintln(w.out, "Available commands:")
	fmt.Fprintln(w.out, "  taleweaver listen         - Follow the pipeline's event stream and play scenes")
	fmt.Fprintln(w.out, "  taleweaver replay <file>  - Play a recorded event stream")
	fmt.Fprintln(w.out, "  taleweaver serve          - Accept events and commands over HTTP")
	fmt.Fprintln(w.out, "  taleweaver locate         - Find the word at a narration position")
	fmt.Fprintln(w.out, "  taleweaver effects        - Inspect the effect cue cache")
}

// Listen subscribes to the pipeline's event stream and plays the session.
func (w *Weaver) Listen(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		url = strings.TrimRight(w.cfg.Pipeline.URL, "/") + w.cfg.Pipeline.EventsPath
	}

	rt := w.newRuntime(transport.NewHTTPCommander(w.cfg.Pipeline.URL, nil))
	defer rt.close()

	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()

	done := w.start(ctx, rt.session)
	sub := transport.NewSubscriber(url, nil, w.log.WithField("component", "subscriber"))
	go func() {
		if err := sub.Run(ctx, func(ev events.Event) { rt.session.Post(ev) }); err != nil && !errors.Is(err, context.Canceled) {
			w.log.WithError(err).Error("Event stream stopped")
		}
	}()
	go w.readControls(ctx, rt.session, cancel)

	<-done
	fmt.Fprintln(w.out, console.Summary(rt.session.Snapshot()))
	return nil
}

// Replay feeds a recorded event stream into a session and plays it.
func (w *Weaver) Replay(cmd *cobra.Command, args []string) error {
	pace, _ := cmd.Flags().GetDuration("pace")

	rt := w.newRuntime(logCommander{log: w.log.WithField("component", "commands")})
	defer rt.close()

	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()

	done := w.start(ctx, rt.session)
	go w.readControls(ctx, rt.session, cancel)

	err := transport.ReplayFile(ctx, args[0], func(ev events.Event) { rt.session.Post(ev) }, transport.ReplayOptions{Pace: pace}, w.log)
	if err != nil && !errors.Is(err, context.Canceled) {
		cancel()
		<-done
		return err
	}

	go w.stopWhenSettled(ctx, rt.session, cancel)
	<-done
	fmt.Fprintln(w.out, console.Summary(rt.session.Snapshot()))
	return nil
}

// Serve runs the HTTP ingress in front of one session.
func (w *Weaver) Serve(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = w.cfg.Server.Addr
	}

	rt := w.newRuntime(transport.NewHTTPCommander(w.cfg.Pipeline.URL, nil))
	defer rt.close()

	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()
	done := w.start(ctx, rt.session)

	srv := &http.Server{
		Addr:              addr,
		Handler:           transport.NewServer(rt.session, w.log.WithField("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	colours.Success.Fprintf(w.out, "Listening on %s\n", addr)
	err := srv.ListenAndServe()
	cancel()
	<-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Locate prints the token voiced at a playback position.
func (w *Weaver) Locate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read timings: %w", err)
	}
	tokens, err := parseTimings(data)
	if err != nil {
		return err
	}
	ms, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid position %q: %w", args[1], err)
	}

	idx := highlight.Locate(tokens, ms)
	if idx < 0 {
		colours.Warning.Fprintf(w.out, "%d ms is before the first word\n", ms)
		return nil
	}
	tok := tokens[idx]
	state := "after"
	if highlight.Contains(tok, ms) {
		state = "inside"
	}
	fmt.Fprintf(w.out, "%d %s (%s [%d, %d))\n", idx, colours.Word.Sprint(tok.Text), state, tok.StartMs, tok.EndMs)
	return nil
}

// parseTimings accepts either a bare token array or a word timings envelope.
func parseTimings(data []byte) ([]story.TimedToken, error) {
	var tokens []story.TimedToken
	if err := json.Unmarshal(data, &tokens); err == nil {
		return tokens, nil
	}
	var envelope story.WordTimings
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode timings: %w", err)
	}
	return envelope.Words, nil
}

func (w *Weaver) cueCache() *effects.CueCache {
	return effects.NewCueCache(nil, w.cfg.Effects.CacheDir, w.cfg.Effects.CacheMaxAge, w.log)
}

func (w *Weaver) ShowCacheStatus(cmd *cobra.Command, args []string) error {
	colours.Title.Fprintln(w.out, "Effect cue cache")

	info, err := w.cueCache().Info()
	if err != nil {
		return fmt.Errorf("failed to get cache info: %w", err)
	}
	colours.Info.Fprintf(w.out, "Location: %s\n", info.Dir)
	colours.Info.Fprintf(w.out, "Entries:  %d (%d bytes)\n", info.Entries, info.Bytes)
	if info.Stale > 0 {
		colours.Warning.Fprintf(w.out, "Stale:    %d\n", info.Stale)
	} else {
		colours.Success.Fprintln(w.out, "All entries are fresh")
	}
	colours.Info.Fprintf(w.out, "Max age:  %s\n", info.MaxAge)
	return nil
}

func (w *Weaver) ClearCache(cmd *cobra.Command, args []string) error {
	if err := w.cueCache().Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	colours.Success.Fprintln(w.out, "Effect cue cache cleared")
	return nil
}

// start runs sess until ctx is cancelled. The returned channel closes once
// the session has stopped.
func (w *Weaver) start(ctx context.Context, sess *session.Session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.WithError(err).Error("Session stopped")
		}
	}()
	return done
}

// stopWhenSettled cancels once the session reaches a state no replayed
// event can move it out of.
func (w *Weaver) stopWhenSettled(ctx context.Context, sess *session.Session, cancel context.CancelFunc) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch sess.Snapshot().Phase {
			case session.PhaseEnded, session.PhaseCancelled:
				cancel()
				return
			}
		}
	}
}

// logCommander records outbound commands when no pipeline is attached.
type logCommander struct {
	log *logrus.Entry
}

func (c logCommander) Send(ctx context.Context, cmd events.Command) error {
	c.log.WithFields(logrus.Fields{
		"command":    cmd.Name,
		"generation": cmd.Generation,
		"stage":      cmd.Stage,
		"kind":       cmd.Kind,
	}).Info("Command not sent, no pipeline attached")
	return nil
}
