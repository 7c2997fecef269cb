package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
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
	return &sliceStream{parts: []string{"Re: ", newText}}, nil
}

func newTools(gen llm.Generator) (*Tools, *chat.Controller) {
	c := chat.New(gen, history.NewLog(history.NewMemory(), "test"))
	return &Tools{chat: c}, c
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	tc, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestSendMessage(t *testing.T) {
	tools, _ := newTools(&mockGenerator{})
	r, err := tools.SendMessage(context.Background(), call(map[string]any{"text": "hello"}))
	require.NoError(t, err)
	require.False(t, r.IsError)
	require.Equal(t, "Re: hello", resultText(t, r))
}

func TestSendMessage_MissingText(t *testing.T) {
	tools, c := newTools(&mockGenerator{})
	r, err := tools.SendMessage(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	require.True(t, r.IsError)
	require.Len(t, c.Messages(), 1)
}

func TestSendMessage_GenerationFailure(t *testing.T) {
	tools, _ := newTools(&mockGenerator{SendFunc: func(context.Context, []llm.Turn, string) (llm.Stream, error) {
		return nil, errors.New("down")
	}})
	r, err := tools.SendMessage(context.Background(), call(map[string]any{"text": "hello"}))
	require.NoError(t, err)
	require.True(t, r.IsError)
	require.Equal(t, history.FailureText, resultText(t, r))
}

func TestRetryRegenerateClearAndHistory(t *testing.T) {
	tools, c := newTools(&mockGenerator{})
	ctx := context.Background()

	r, err := tools.RetryTurn(ctx, call(nil))
	require.NoError(t, err)
	require.True(t, r.IsError)

	_, err = tools.SendMessage(ctx, call(map[string]any{"text": "ping"}))
	require.NoError(t, err)

	r, err = tools.RegenerateReply(ctx, call(nil))
	require.NoError(t, err)
	require.Equal(t, "Re: ping", resultText(t, r))
	require.Len(t, c.Messages(), 3)

	r, err = tools.GetHistory(ctx, call(nil))
	require.NoError(t, err)
	var msgs []history.Message
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &msgs))
	require.Len(t, msgs, 3)
	require.Equal(t, history.GreetingID, msgs[0].ID)

	_, err = tools.ClearHistory(ctx, call(nil))
	require.NoError(t, err)
	require.Len(t, c.Messages(), 1)
}

type gatedStream struct{ release chan struct{} }

func (s *gatedStream) Recv() (string, error) {
	<-s.release
	return "", io.EOF
}

func (s *gatedStream) Close() error { return nil }

func TestSendMessage_ClearedMidTurn(t *testing.T) {
	stream := &gatedStream{release: make(chan struct{})}
	tools, c := newTools(&mockGenerator{SendFunc: func(context.Context, []llm.Turn, string) (llm.Stream, error) {
		return stream, nil
	}})

	results := make(chan *mcp.CallToolResult, 1)
	go func() {
		r, err := tools.SendMessage(context.Background(), call(map[string]any{"text": "hello"}))
		require.NoError(t, err)
		results <- r
	}()
	require.Eventually(t, func() bool { return c.State() == chat.StateStreaming }, time.Second, 2*time.Millisecond)

	c.Clear()
	close(stream.release)

	r := <-results
	require.True(t, r.IsError)
	require.NotEqual(t, history.GreetingText, resultText(t, r))
}

func TestNew_RegistersTools(t *testing.T) {
	c := chat.New(&mockGenerator{}, history.NewLog(history.NewMemory(), "test"))
	require.NotNil(t, New(c))
}
