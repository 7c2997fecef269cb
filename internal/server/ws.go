package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/comigor/jenesi-go/internal/chat"
	"github.com/comigor/jenesi-go/internal/logger"
	"github.com/comigor/jenesi-go/internal/window"
)

// wsCommand is a client request on the socket.
type wsCommand struct {
	Type     string `json:"type"` // send, retry, regenerate, clear, scroll, speak
	Text     string `json:"text,omitempty"`
	ID       string `json:"id,omitempty"`
	AtTop    bool   `json:"atTop,omitempty"`
	AtBottom bool   `json:"atBottom,omitempty"`
}

// wsFrame is pushed to the client.
type wsFrame struct {
	Type    string               `json:"type"` // window, scroll, error
	Window  *windowView          `json:"window,omitempty"`
	Scroll  *window.ScrollResult `json:"scroll,omitempty"`
	Command string               `json:"command,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// handleWS pushes a window snapshot on connect and after every change, and
// runs commands sent by the client. A single goroutine owns writes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	changes, unsubscribe := s.chat.Subscribe()
	defer unsubscribe()

	out := make(chan wsFrame, 16)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go s.readCommands(conn, out, done, quit)

	if err := s.pushWindow(conn); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-changes:
			if err := s.pushWindow(conn); err != nil {
				return
			}
		case f := <-out:
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushWindow(conn *websocket.Conn) error {
	v, err := s.snapshot()
	if err != nil {
		logger.L.Error("window snapshot failed", "error", err)
		return conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
	}
	return conn.WriteJSON(wsFrame{Type: "window", Window: &v})
}

func (s *Server) readCommands(conn *websocket.Conn, out chan<- wsFrame, done, quit chan struct{}) {
	defer close(done)
	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.L.Debug("websocket read ended", "error", err)
			}
			return
		}
		if !blocks(cmd.Type) {
			// Scroll frames carry the anchor; keep them ordered and never drop one.
			if f, ok := s.exec(cmd); ok {
				select {
				case out <- f:
				case <-quit:
					return
				}
			}
			continue
		}
		go func() {
			if f, ok := s.exec(cmd); ok {
				select {
				case out <- f:
				default:
					logger.L.Warn("dropping websocket frame", "type", f.Type)
				}
			}
		}()
	}
}

// blocks reports whether cmd waits on the backend and must run off the read
// loop.
func blocks(cmd string) bool {
	switch cmd {
	case "send", "retry", "regenerate", "speak":
		return true
	}
	return false
}

func (s *Server) exec(cmd wsCommand) (wsFrame, bool) {
	ctx := context.Background()
	var err error
	switch cmd.Type {
	case "send":
		err = s.chat.Send(ctx, cmd.Text)
	case "retry":
		err = s.chat.Retry(ctx)
	case "regenerate":
		err = s.chat.Regenerate(ctx)
	case "clear":
		s.chat.Clear()
	case "speak":
		err = s.chat.Speak(ctx, cmd.ID)
	case "scroll":
		r := s.chat.Scroll(window.ScrollSignal{AtTop: cmd.AtTop, AtBottom: cmd.AtBottom})
		return wsFrame{Type: "scroll", Scroll: &r}, true
	default:
		err = errors.New("unknown command")
	}
	if err != nil {
		if !errors.Is(err, chat.ErrGeneration) {
			logger.L.Info("websocket command rejected", "command", cmd.Type, "error", err)
		}
		return wsFrame{Type: "error", Command: cmd.Type, Error: err.Error()}, true
	}
	return wsFrame{}, false
}
