// Package session holds the state a chat client keeps between backend calls:
// the auth token and the named message chains. A Session is safe for
// concurrent use; each SendAndStream call decodes its stream with private
// state.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/chatchain/pkg/backend"
	"github.com/papercomputeco/chatchain/pkg/eventstream"
	"github.com/papercomputeco/chatchain/pkg/logger"
	"github.com/papercomputeco/chatchain/pkg/sse"
)

// Backend is the remote chat service. *backend.Client implements it.
type Backend interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error)
	Send(ctx context.Context, token string, req backend.SendRequest) (io.ReadCloser, error)
	Quota(ctx context.Context, token string) (*backend.QuotaResponse, error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithToken seeds the session with a previously stored token.
func WithToken(token string) Option {
	return func(s *Session) {
		s.token = token
	}
}

// WithAssembler replaces the stream assembler used by SendAndStream.
func WithAssembler(a *sse.Assembler) Option {
	return func(s *Session) {
		if a != nil {
			s.assembler = a
		}
	}
}

// WithPublisher emits a turn event through p after every answered send.
// Publish failures are logged and never fail the send.
func WithPublisher(p eventstream.Publisher, source eventstream.EventSource) Option {
	return func(s *Session) {
		s.publisher = p
		s.source = source
	}
}

// Session is an authenticated conversation context against one backend.
type Session struct {
	backend   Backend
	assembler *sse.Assembler
	logger    *slog.Logger
	publisher eventstream.Publisher
	source    eventstream.EventSource

	// mu guards token and chains.
	mu     sync.RWMutex
	token  string
	chains map[string][]Message
}

// New returns a logged-out Session with no chains.
func New(b Backend, opts ...Option) *Session {
	s := &Session{
		backend: b,
		logger:  logger.Nop(),
		chains:  make(map[string][]Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.assembler == nil {
		s.assembler = sse.NewAssembler(sse.WithLogger(s.logger))
	}
	return s
}

// Login exchanges credentials for a token and stores it. A rejected login
// returns an *AuthError carrying the backend's message and leaves the
// session unchanged.
func (s *Session) Login(ctx context.Context, username, password string) (string, error) {
	resp, err := s.backend.Login(ctx, backend.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", err
	}

	if resp.Status != backend.StatusSuccess || resp.Token == "" {
		reason := resp.Message
		if reason == "" {
			reason = "login rejected"
		}
		return "", &AuthError{Reason: reason}
	}

	s.SetToken(resp.Token)
	s.logger.Info("logged in", "username", username)

	return resp.Token, nil
}

// Logout forgets the stored token.
func (s *Session) Logout() {
	s.SetToken("")
}

// SetToken replaces the stored token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the stored token, empty when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// LoggedIn reports whether a token is stored.
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

// StartChain creates chain id, or resets it to empty if it already exists.
func (s *Session) StartChain(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[id] = []Message{}
}

// AddMessage appends a message to chain id.
func (s *Session) AddMessage(role Role, content, id string) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.chains[id]
	if !ok {
		return &ChainNotFoundError{ID: id}
	}
	s.chains[id] = append(msgs, Message{Role: role, Content: content})

	return nil
}

// DropLast removes the most recent message of chain id, e.g. a user message
// whose send failed. It is a no-op on an empty chain.
func (s *Session) DropLast(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.chains[id]
	if !ok {
		return &ChainNotFoundError{ID: id}
	}
	if len(msgs) > 0 {
		s.chains[id] = msgs[:len(msgs)-1]
	}
	return nil
}

// Messages returns a copy of chain id in conversation order.
func (s *Session) Messages(id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.chains[id]
	if !ok {
		return nil, &ChainNotFoundError{ID: id}
	}
	return slices.Clone(msgs), nil
}

// HasChain reports whether chain id has been started.
func (s *Session) HasChain(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chains[id]
	return ok
}

// Chains returns the ids of all started chains, sorted.
func (s *Session) Chains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeleteChain removes chain id.
func (s *Session) DeleteChain(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chains[id]; !ok {
		return &ChainNotFoundError{ID: id}
	}
	delete(s.chains, id)
	return nil
}

// SendAndStream sends chain id and returns the streamed answer. It fails
// with an *AuthError before any network call when logged out.
func (s *Session) SendAndStream(ctx context.Context, id string, opts ...sse.AssemblerOption) (string, error) {
	res, err := s.SendAndStreamResult(ctx, id, opts...)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// SendAndStreamResult is SendAndStream returning the full decode result,
// including warnings and stream metadata.
func (s *Session) SendAndStreamResult(ctx context.Context, id string, opts ...sse.AssemblerOption) (*sse.Result, error) {
	token := s.Token()
	if token == "" {
		return nil, notLoggedIn()
	}

	msgs, err := s.Messages(id)
	if err != nil {
		return nil, err
	}

	wire := make([]backend.Message, len(msgs))
	for i, m := range msgs {
		wire[i] = backend.Message{Role: string(m.Role), Content: m.Content}
	}

	started := time.Now()
	body, err := s.backend.Send(ctx, token, backend.SendRequest{
		Messages:       wire,
		ConversationID: id,
	})
	if err != nil {
		return nil, rejected(err)
	}
	defer body.Close()

	res, err := s.assembler.With(opts...).Run(ctx, body)
	if err != nil {
		s.logger.Error("stream failed", "chain", id, "error", err)
		return nil, err
	}

	s.logger.Debug("stream complete",
		"chain", id,
		"done", res.Done,
		"bytes", len(res.Text),
		"warnings", len(res.Warnings),
	)

	s.publishTurn(ctx, id, wire, res, started)

	return res, nil
}

func (s *Session) publishTurn(ctx context.Context, id string, sent []backend.Message, res *sse.Result, started time.Time) {
	if s.publisher == nil {
		return
	}

	msgs := make([]eventstream.Message, len(sent))
	for i, m := range sent {
		msgs[i] = eventstream.Message{Role: m.Role, Content: m.Content}
	}

	event := eventstream.NewTurnCompletedEvent(s.source, id, eventstream.StreamMeta{
		StartedAt:    started.UTC(),
		CompletedAt:  time.Now().UTC(),
		Done:         res.Done,
		FinishReason: res.FinishReason,
		Model:        res.Model,
		Warnings:     len(res.Warnings),
	}, msgs, res.Text)

	if err := s.publisher.PublishTurn(ctx, event); err != nil {
		s.logger.Warn("could not publish turn event", "chain", id, "error", err)
	}
}

// CheckQuota returns the backend's quota value exactly as reported.
func (s *Session) CheckQuota(ctx context.Context) (string, error) {
	token := s.Token()
	if token == "" {
		return "", notLoggedIn()
	}

	resp, err := s.backend.Quota(ctx, token)
	if err != nil {
		return "", rejected(err)
	}

	if resp.Status != backend.StatusSuccess {
		msg := resp.Message
		if msg == "" {
			msg = "error fetching quota"
		}
		return "", &backend.BackendError{Op: "quota", Message: msg}
	}

	return resp.QuotaString(), nil
}

// rejected turns a backend 401 into an *AuthError.
func rejected(err error) error {
	if errors.Is(err, backend.ErrUnauthorized) {
		return &AuthError{Reason: "token rejected by backend"}
	}
	return err
}
