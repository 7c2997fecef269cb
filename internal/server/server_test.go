package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/comigor/jenesi-go/internal/chat"
	"github.com/comigor/jenesi-go/internal/history"
	"github.com/comigor/jenesi-go/internal/llm"
)

type sliceStream struct{ parts []string }

func (s *sliceStream) Recv() (string, error) {
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	p := s.parts[0]
	s.parts = s.parts[1:]
	return p, nil
}

func (s *sliceStream) Close() error { return nil }

type mockGenerator struct {
	SendFunc func(ctx context.Context, history []llm.Turn, newText string) (llm.Stream, error)
}

func (m *mockGenerator) Send(ctx context.Context, history []llm.Turn, newText string) (llm.Stream, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, history, newText)
	}
	return &sliceStream{parts: []string{"echo: ", newText}}, nil
}

func newTestServer(t *testing.T, gen llm.Generator) (*httptest.Server, *chat.Controller) {
	t.Helper()
	c := chat.New(gen, history.NewLog(history.NewMemory(), "test"))
	srv := httptest.NewServer(New(c).Handler())
	t.Cleanup(srv.Close)
	return srv, c
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestSendAndWindow(t *testing.T) {
	srv, _ := newTestServer(t, &mockGenerator{})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/messages", `{"text":"write a function"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	last := msgs[2].(map[string]any)
	require.Equal(t, "echo: write a function", last["text"])
	require.Equal(t, "model", last["role"])
	require.Equal(t, "code", last["domain"])
	require.Equal(t, "Idle", body["state"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/window", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 3, body["total"])
	require.Equal(t, false, body["hasOlder"])
}

func TestSend_EmptyText(t *testing.T) {
	srv, _ := newTestServer(t, &mockGenerator{})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/messages", `{"text":"   "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body["error"], "empty")
}

func TestSend_GenerationFailure(t *testing.T) {
	gen := &mockGenerator{SendFunc: func(context.Context, []llm.Turn, string) (llm.Stream, error) {
		return nil, errors.New("unavailable")
	}}
	srv, _ := newTestServer(t, gen)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	win := body["window"].(map[string]any)
	msgs := win["messages"].([]any)
	require.Equal(t, true, msgs[len(msgs)-1].(map[string]any)["isError"])
}

func TestRetryRegenerateAndClear(t *testing.T) {
	srv, c := newTestServer(t, &mockGenerator{})

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/retry", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/regenerate", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	do(t, http.MethodPost, srv.URL+"/api/messages", `{"text":"hello"}`)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/regenerate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["messages"].([]any), 3)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/messages", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, c.Messages(), 1)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/messages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["messages"].([]any), 1)
}

func TestScroll(t *testing.T) {
	srv, _ := newTestServer(t, &mockGenerator{})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/scroll", `{"atTop":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["grew"])
	require.Equal(t, true, body["scrolledUp"])
}

func TestSpeech_NotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, &mockGenerator{})
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/messages/welcome/speech", "")
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestSuggestions(t *testing.T) {
	srv, _ := newTestServer(t, &mockGenerator{})
	resp, body := do(t, http.MethodGet, srv.URL+"/api/suggestions?q=stock", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Market analysis", body["suggestions"].([]any)[0])
}

func TestWebSocket(t *testing.T) {
	srv, _ := newTestServer(t, &mockGenerator{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "window", f.Type)
	require.Len(t, f.Window.Messages, 1)

	require.NoError(t, conn.WriteJSON(wsCommand{Type: "send", Text: "ping"}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != "window" || len(f.Window.Messages) != 3 {
			continue
		}
		last := f.Window.Messages[2]
		if !last.IsStreaming && f.Window.State == chat.StateIdle {
			require.Equal(t, "echo: ping", last.Text)
			break
		}
	}

	require.NoError(t, conn.WriteJSON(wsCommand{Type: "bogus"}))
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == "error" {
			require.Equal(t, "bogus", f.Command)
			break
		}
	}
}

func TestWebSocket_ScrollFramesInOrder(t *testing.T) {
	log := history.NewLog(history.NewMemory(), "test")
	for i := range 49 {
		role := history.RoleUser
		if i%2 == 1 {
			role = history.RoleModel
		}
		require.NoError(t, log.Append(history.Message{ID: fmt.Sprintf("m%d", i), Role: role, Text: "x"}))
	}
	c := chat.New(&mockGenerator{}, log)
	srv := httptest.NewServer(New(c).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for range 3 {
		require.NoError(t, conn.WriteJSON(wsCommand{Type: "scroll", AtTop: true}))
	}

	var widths []int
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(widths) < 3 {
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == "scroll" {
			widths = append(widths, f.Scroll.NewWidth)
		}
	}
	require.Equal(t, []int{40, 50, 50}, widths)
}
