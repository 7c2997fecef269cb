// Package server exposes the chat controller over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/comigor/jenesi-go/internal/chat"
	"github.com/comigor/jenesi-go/internal/history"
	"github.com/comigor/jenesi-go/internal/intent"
	"github.com/comigor/jenesi-go/internal/logger"
	"github.com/comigor/jenesi-go/internal/window"
)

// Server routes API requests to a chat controller.
type Server struct {
	chat     *chat.Controller
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// New builds the API router.
func New(c *chat.Controller) *Server {
	s := &Server{
		chat: c,
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("GET /api/messages", s.handleMessages)
	s.mux.HandleFunc("POST /api/messages", s.handleSend)
	s.mux.HandleFunc("DELETE /api/messages", s.handleClear)
	s.mux.HandleFunc("GET /api/window", s.handleWindow)
	s.mux.HandleFunc("POST /api/retry", s.handleRetry)
	s.mux.HandleFunc("POST /api/regenerate", s.handleRegenerate)
	s.mux.HandleFunc("POST /api/scroll", s.handleScroll)
	s.mux.HandleFunc("POST /api/messages/{id}/speech", s.handleSpeak)
	s.mux.HandleFunc("GET /api/suggestions", s.handleSuggestions)
	s.mux.HandleFunc("GET /api/ws", s.handleWS)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.L.Info("starting server", "address", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// messageView is a message as rendered by clients.
type messageView struct {
	history.Message
	Domain intent.Domain `json:"domain,omitempty"`
}

type windowView struct {
	chat.View
	Messages []messageView `json:"messages"`
}

func decorate(msgs []history.Message) []messageView {
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView{Message: m}
		if m.Role == history.RoleModel && !m.IsError {
			out[i].Domain = intent.Classify(m.Text)
		}
	}
	return out
}

func (s *Server) snapshot() (windowView, error) {
	v, err := s.chat.View()
	if err != nil {
		return windowView{}, err
	}
	return windowView{View: v, Messages: decorate(v.Messages)}, nil
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": decorate(s.chat.Messages())})
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	v, err := s.snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type sendRequest struct {
	Text string `json:"text"`
}

// handleSend blocks until the reply settles. Generation is detached from the
// request context so a dropped client does not abandon the turn.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	logger.L.Info("send request", "chars", len(req.Text))
	s.respond(w, s.chat.Send(context.WithoutCancel(r.Context()), req.Text))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.chat.Retry(context.WithoutCancel(r.Context())))
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.chat.Regenerate(context.WithoutCancel(r.Context())))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.chat.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	var sig window.ScrollSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.chat.Scroll(sig))
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Speak(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	v, err := s.chat.View()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"playing": v.Playing})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": intent.Suggestions(r.URL.Query().Get("q"))})
}

// respond writes the window after a turn. A failed generation is still a
// settled window, so it is reported with the error alongside.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil && !errors.Is(err, chat.ErrGeneration) {
		writeError(w, err)
		return
	}
	v, verr := s.snapshot()
	if verr != nil {
		writeError(w, verr)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "window": v})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrNotSpeakable):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrSessionActive),
		errors.Is(err, chat.ErrNothingToRetry),
		errors.Is(err, chat.ErrNothingToRegenerate):
		return http.StatusConflict
	case errors.Is(err, chat.ErrPlaybackUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, chat.ErrGeneration):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.L.Error("request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("write response", "error", err)
	}
}
