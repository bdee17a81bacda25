package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"taleweaver/internal/events"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/session"
)

const maxEventBytes = 64 << 20

// ErrUnknownCommand is returned for command names the session does not accept.
var ErrUnknownCommand = errors.New("unknown command")

// Session is the part of a session the ingress drives.
type Session interface {
	Post(ev events.Event) bool
	Snapshot() session.Snapshot
}

// Server is the HTTP ingress in front of one session.
type Server struct {
	session Session
	log     *logrus.Entry
}

// NewServer constructs a chi router implementing http.Handler.
func NewServer(sess Session, log *logrus.Entry) http.Handler {
	srv := &Server{session: sess, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Post("/events/{name}", srv.handleEvent)
	r.Post("/commands/{name}", srv.handleCommand)
	r.Get("/status", srv.handleStatus)

	return r
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		s.clientError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	ev, err := events.Decode(name, body)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			s.clientError(w, http.StatusNotFound, err.Error())
			return
		}
		s.clientError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.post(w, ev)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	ev, err := ParseIntent(chi.URLParam(r, "name"), r.URL.Query())
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownCommand) {
			status = http.StatusNotFound
		}
		s.clientError(w, status, err.Error())
		return
	}
	s.post(w, ev)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) post(w http.ResponseWriter, ev events.Event) {
	if !s.session.Post(ev) {
		s.clientError(w, http.StatusServiceUnavailable, "session stopped")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"accepted": ev.Name()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) clientError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// ParseIntent maps a command name and its query values to a session intent.
func ParseIntent(name string, q url.Values) (events.Event, error) {
	switch name {
	case events.CmdStartPlayback:
		return events.StartPlayback{}, nil
	case events.CmdCancel:
		return events.Cancel{}, nil
	case events.CmdConfirmReady:
		return events.ConfirmReady{}, nil
	case events.CmdBacktrack:
		return events.Backtrack{}, nil
	case events.CmdContinue:
		return events.Continue{Choice: q.Get("choice")}, nil
	case events.CmdRetryStage:
		stage, err := pipeline.ParseStage(q.Get("stage"))
		if err != nil {
			return nil, err
		}
		return events.RetryStage{Stage: stage}, nil
	case events.CmdRegenerate:
		kind, err := pipeline.ParseKind(q.Get("kind"))
		if err != nil {
			return nil, err
		}
		return events.Regenerate{Kind: kind}, nil
	case "pause":
		return events.Pause{}, nil
	case "resume":
		return events.Resume{}, nil
	case "text-display":
		enabled, err := strconv.ParseBool(q.Get("enabled"))
		if err != nil {
			return nil, fmt.Errorf("invalid enabled value %q", q.Get("enabled"))
		}
		return events.SetTextDisplay{Enabled: enabled}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}
