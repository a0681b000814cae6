// Package stub is a development chat backend. It implements the same /login,
// /send and /quota endpoints as the real service and streams its replies as
// "data: " frames, deliberately cut into small chunks so that lines and
// multi-byte characters straddle chunk boundaries.
package stub

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatchain/pkg/backend"
	"github.com/papercomputeco/chatchain/pkg/logger"
)

const (
	defaultChunkSize = 7
	defaultQuota     = 100
)

// Responder produces the full answer for a chain.
type Responder func(messages []backend.Message) string

// Config is the stub server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":9593").
	ListenAddr string

	// Users maps usernames to passwords. Empty means any non-empty
	// username/password pair is accepted.
	Users map[string]string

	// Quota is the number of sends each new session may make. Zero refuses
	// every send; a negative value selects the default of 100.
	Quota int

	// ChunkSize is the number of bytes written per streamed chunk.
	ChunkSize int

	// ChunkDelay is slept between streamed chunks.
	ChunkDelay time.Duration

	// Responder overrides the default echo answer.
	Responder Responder

	Logger *slog.Logger
}

type account struct {
	username string
	quota    int
}

// Server is the stub backend.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App

	mu       sync.Mutex
	sessions map[string]*account
}

// NewServer creates the stub backend and registers its routes.
func NewServer(config Config) *Server {
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.Quota < 0 {
		config.Quota = defaultQuota
	}
	if config.Responder == nil {
		config.Responder = EchoResponder
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		logger:   config.Logger,
		app:      app,
		sessions: make(map[string]*account),
	}

	app.Post("/login", s.handleLogin)
	app.Post("/send", s.handleSend)
	app.Get("/quota", s.handleQuota)
	app.Get("/healthz", adaptor.HTTPHandlerFunc(handleHealth))

	return s
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting stub backend", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting stub backend", "listen", listener.Addr().String())
	return s.app.Listener(listener)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// EchoResponder answers with the content of the last user message.
func EchoResponder(messages []backend.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return "You said: " + messages[i].Content
		}
	}
	return "Hello! Add a user message to start the conversation."
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req backend.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(backend.LoginResponse{
			Status:  "error",
			Message: "invalid request body",
		})
	}

	if !s.checkPassword(req.Username, req.Password) {
		s.logger.Debug("login rejected", "username", req.Username)
		return c.Status(fiber.StatusUnauthorized).JSON(backend.LoginResponse{
			Status:  "error",
			Message: "invalid username or password",
		})
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = &account{username: req.Username, quota: s.config.Quota}
	s.mu.Unlock()

	s.logger.Debug("login accepted", "username", req.Username)
	return c.JSON(backend.LoginResponse{Status: backend.StatusSuccess, Token: token})
}

func (s *Server) handleQuota(c *fiber.Ctx) error {
	acct, ok := s.authorize(c)
	if !ok {
		return unauthorized(c)
	}

	s.mu.Lock()
	quota := acct.quota
	s.mu.Unlock()

	raw, _ := json.Marshal(quota)
	return c.JSON(backend.QuotaResponse{Status: backend.StatusSuccess, Quota: raw})
}

func (s *Server) handleSend(c *fiber.Ctx) error {
	acct, ok := s.authorize(c)
	if !ok {
		return unauthorized(c)
	}

	var req backend.SendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid request body"})
	}

	s.mu.Lock()
	if acct.quota <= 0 {
		s.mu.Unlock()
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"status": "error", "message": "quota exhausted"})
	}
	acct.quota--
	s.mu.Unlock()

	s.logger.Debug("streaming reply",
		"conversation_id", req.ConversationID,
		"message_count", len(req.Messages),
		"request_id", c.Get(backend.RequestIDHeader),
	)

	payload := Frames(s.config.Responder(req.Messages))

	c.Set(fiber.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	// io.Pipe gives per-chunk flushing through fasthttp's chunked writer.
	pr, pw := io.Pipe()
	go s.writeChunks(pw, payload)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) writeChunks(pw *io.PipeWriter, payload []byte) {
	defer pw.Close()

	for start := 0; start < len(payload); start += s.config.ChunkSize {
		end := min(start+s.config.ChunkSize, len(payload))
		if _, err := pw.Write(payload[start:end]); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Error("error writing chunk to pipe", "error", err)
			}
			return
		}
		if s.config.ChunkDelay > 0 {
			time.Sleep(s.config.ChunkDelay)
		}
	}
}

func (s *Server) authorize(c *fiber.Ctx) (*account, bool) {
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || token == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.sessions[token]
	return acct, ok
}

func (s *Server) checkPassword(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	if len(s.config.Users) == 0 {
		return true
	}
	want, ok := s.config.Users[username]
	return ok && want == password
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "not logged in"})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}
