// Package mcpserver exposes chat turns as Model Context Protocol tools so
// MCP clients can consult the assistant over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meditreat/meditreat/internal/turn"
)

// Turns runs buffered chat turns.
type Turns interface {
	Run(ctx context.Context, req turn.Request) (turn.Result, error)
}

// History clears stored conversations.
type History interface {
	Clear(ctx context.Context, userID, chatID string) bool
}

// Server wraps an MCP server with the ask and clear_history tools.
type Server struct {
	mcp     *server.MCPServer
	turns   Turns
	history History
	logger  *slog.Logger
}

// New builds the MCP server. history may be nil, in which case
// clear_history is not offered.
func New(version string, turns Turns, history History, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcp:     server.NewMCPServer("meditreat", version, server.WithToolCapabilities(false)),
		turns:   turns,
		history: history,
		logger:  logger.With("component", "mcp"),
	}

	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Ask the medical assistant a question within a chat. "+
			"Earlier messages of the same chat are taken into account."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Stable identifier of the user")),
		mcp.WithString("chat_id", mcp.Required(), mcp.Description("Identifier of the conversation")),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's message")),
		mcp.WithString("llm", mcp.Description("Provider name, such as openai or anthropic")),
	), s.handleAsk)

	if history != nil {
		s.mcp.AddTool(mcp.NewTool("clear_history",
			mcp.WithDescription("Delete every stored message of a chat."),
			mcp.WithString("user_id", mcp.Required()),
			mcp.WithString("chat_id", mcp.Required()),
		), s.handleClear)
	}
	return s
}

// ServeStdio serves MCP over the given streams until ctx is cancelled or
// the input closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.turns.Run(ctx, turn.Request{
		UserID:  req.GetString("user_id", ""),
		ChatID:  req.GetString("chat_id", ""),
		Message: req.GetString("message", ""),
		LLM:     req.GetString("llm", ""),
	})
	if err != nil {
		if !errors.Is(err, turn.ErrValidation) {
			s.logger.Error("mcp turn failed", "error", err)
		}
		return mcp.NewToolResultError(turn.ClientError(err)), nil
	}

	text := res.Reply
	for i, src := range res.Sources {
		if i == 0 {
			text += "\n\nSources:"
		}
		text += "\n- " + src.URL
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chatID, err := req.RequireString("chat_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.history.Clear(ctx, userID, chatID) {
		return mcp.NewToolResultError("history could not be cleared"), nil
	}
	return mcp.NewToolResultText("cleared"), nil
}
