// Package mcpserver exposes the conversation as MCP tools so other agents can
// drive it over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/jenesi-go/internal/chat"
	"github.com/comigor/jenesi-go/internal/history"
	"github.com/comigor/jenesi-go/internal/logger"
)

const (
	serverName    = "jenesi"
	serverVersion = "0.1.0"
)

var errNoReply = errors.New("conversation was cleared before a reply arrived")

// Tools binds MCP tool handlers to a chat controller.
type Tools struct {
	chat *chat.Controller
}

// New builds an MCP server with the chat tools registered.
func New(c *chat.Controller) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	t := &Tools{chat: c}

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to JENESI and wait for the complete reply."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The message to send")),
	), t.SendMessage)
	s.AddTool(mcp.NewTool("retry_turn",
		mcp.WithDescription("Re-send the last user message, replacing a failed reply."),
	), t.RetryTurn)
	s.AddTool(mcp.NewTool("regenerate_reply",
		mcp.WithDescription("Discard the last reply and generate a new one for the same message."),
	), t.RegenerateReply)
	s.AddTool(mcp.NewTool("clear_history",
		mcp.WithDescription("Reset the conversation to the greeting."),
	), t.ClearHistory)
	s.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Return the whole conversation as JSON."),
	), t.GetHistory)
	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(c *chat.Controller) error {
	logger.L.Info("serving MCP over stdio")
	return server.ServeStdio(New(c))
}

func (t *Tools) SendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, ok := request.GetArguments()["text"].(string)
	if !ok {
		return mcp.NewToolResultError(`missing required argument "text"`), nil
	}
	return t.reply(t.chat.Send(ctx, text))
}

func (t *Tools) RetryTurn(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.reply(t.chat.Retry(ctx))
}

func (t *Tools) RegenerateReply(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.reply(t.chat.Regenerate(ctx))
}

func (t *Tools) ClearHistory(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.chat.Clear()
	return mcp.NewToolResultText("Conversation cleared."), nil
}

func (t *Tools) GetHistory(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(t.chat.Messages())
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// reply turns the outcome of a turn into a tool result: the reply text, or
// the error as a tool-level failure.
func (t *Tools) reply(err error) (*mcp.CallToolResult, error) {
	if err != nil {
		logger.L.Warn("MCP tool call failed", "error", err)
		if errors.Is(err, chat.ErrGeneration) {
			return mcp.NewToolResultError(history.FailureText), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs := t.chat.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != history.RoleModel || last.IsGreeting() || last.IsStreaming || last.IsError {
		// The conversation was cleared while the turn was in flight.
		logger.L.Warn("MCP turn ended without a reply", "tail", last.ID)
		return mcp.NewToolResultError(errNoReply.Error()), nil
	}
	return mcp.NewToolResultText(last.Text), nil
}
