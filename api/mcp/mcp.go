// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents hold chatchain conversations: send messages on named chains, read
// chain history and check the backend quota.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chatchain/pkg/session"
	"github.com/papercomputeco/chatchain/pkg/utils"
)

type Config struct {
	// Session is the logged-in chat session the tools act on.
	Session *session.Session

	// DefaultChain is used when a tool call names no chain.
	DefaultChain string

	// SystemPrompt opens every chain the server starts.
	SystemPrompt string

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler

	// sendMu serializes sends so that one chain never has two answers in
	// flight.
	sendMu sync.Mutex
}

// NewServer creates a new MCP server with the chat tools registered.
func NewServer(c Config) (*Server, error) {
	if c.Session == nil {
		return nil, errors.New("session is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if c.DefaultChain == "" {
		c.DefaultChain = "default"
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "chatchain",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        sendToolName,
		Description: sendDescription,
	}, s.handleSend)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        historyToolName,
		Description: historyDescription,
	}, s.handleHistory)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        quotaToolName,
		Description: quotaDescription,
	}, s.handleQuota)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server, for connecting custom
// transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// RunStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
