package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/dispatch"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/hub"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/middleware"
)

// SessionService serves the live-review endpoints: session creation, the
// event stream, and action dispatch.
type SessionService struct {
	worker *dispatch.Worker
	hub    *hub.Hub
}

// NewSessionService creates a new SessionService over the worker and hub.
func NewSessionService(worker *dispatch.Worker, h *hub.Hub) *SessionService {
	return &SessionService{worker: worker, hub: h}
}

// Register mounts the service's routes on the mux.
func (s *SessionService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session", s.CreateSession)
	mux.HandleFunc("GET /api/session/{id}/events", s.Events)
	mux.HandleFunc("POST /api/session/{id}/actions", s.Dispatch)
}

// CreateSession opens a dispatch session for the authenticated user.
func (s *SessionService) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	session, err := s.worker.CreateSession(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	slog.Info("Session created", "session_id", session.ID, "user_id", userID)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": session.ID})
}

// session resolves the path's session ID and checks it belongs to the
// authenticated user.
func (s *SessionService) session(w http.ResponseWriter, r *http.Request) (*dispatch.Session, bool) {
	session, ok := s.worker.Session(r.PathValue("id"))
	if !ok {
		respondError(w, dispatch.ErrUnknownSession)
		return nil, false
	}
	if session.User.BuyIndex != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, errors.New("session belongs to another user"))
		return nil, false
	}
	return session, true
}

// Events streams the session's hub channel as server-sent events. A reconnect
// replaces the previous stream; losing the stream outright closes the session
// and releases any joined lobby.
func (s *SessionService) Events(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	// Subscribe before the headers go out so nothing can slip between the
	// client seeing the 200 and the stream being live.
	sub := s.hub.Subscribe(session.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			s.disconnect(r, sub, session)
			return
		case event, open := <-sub.Events():
			if !open {
				// A newer stream took over the channel.
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("Failed to encode event", "session_id", session.ID, "error", err)
				continue
			}
			if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
				s.disconnect(r, sub, session)
				return
			}
			flusher.Flush()
		}
	}
}

// disconnect ends the session when its event stream drops, so a vanished
// client releases its lobby seat instead of blocking readiness for everyone
// else. A stream that a reconnect already replaced leaves the session alone.
func (s *SessionService) disconnect(r *http.Request, sub *hub.Subscription, session *dispatch.Session) {
	if !s.hub.Unsubscribe(sub) {
		return
	}
	slog.Info("Session disconnected", "session_id", session.ID, "user_id", session.User.BuyIndex)
	s.worker.CloseSession(context.WithoutCancel(r.Context()), session.ID)
}

// Dispatch executes one action for the session. Results arrive on the event
// stream; the response only acknowledges acceptance.
func (s *SessionService) Dispatch(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var action dispatch.Action
	if err := readJSON(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.worker.Dispatch(r.Context(), session.ID, action); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
