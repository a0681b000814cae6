// Package backend is the HTTP client for the remote chat backend: login,
// streamed completion of a message chain, and quota lookup.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatchain/pkg/logger"
	"github.com/papercomputeco/chatchain/pkg/utils"
)

const (
	// RequestIDHeader carries a per-send uuid for correlating backend logs.
	RequestIDHeader = "X-Request-ID"

	contentTypeJSON = "application/json; charset=utf-8"

	defaultTimeout     = 30 * time.Second
	defaultReadTimeout = 2 * time.Minute

	// maxErrorBody bounds how much of a failed reply is kept for the error.
	maxErrorBody = 4 * 1024
)

// Config is the backend client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:9593".
	BaseURL string

	// Timeout bounds the single request/response calls (login, quota).
	Timeout time.Duration

	// ReadTimeout bounds how long a streamed body may go without delivering
	// any data. Zero uses the default; a negative value disables it.
	ReadTimeout time.Duration

	// HTTPClient overrides the transport. It must not set a total Timeout,
	// which would cut long streams short.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the chat backend.
type Client struct {
	baseURL     string
	timeout     time.Duration
	readTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient validates c and returns a Client.
func NewClient(c Config) (*Client, error) {
	if c.BaseURL == "" {
		return nil, errors.New("backend URL is required")
	}

	cl := &Client{
		baseURL:     strings.TrimRight(c.BaseURL, "/"),
		timeout:     c.Timeout,
		readTimeout: c.ReadTimeout,
		httpClient:  c.HTTPClient,
		logger:      c.Logger,
	}

	if cl.timeout <= 0 {
		cl.timeout = defaultTimeout
	}
	if cl.readTimeout == 0 {
		cl.readTimeout = defaultReadTimeout
	}
	if cl.httpClient == nil {
		cl.httpClient = &http.Client{}
	}
	if cl.logger == nil {
		cl.logger = logger.Nop()
	}

	return cl, nil
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login posts credentials to /login. A reply whose status is not "success"
// is returned as-is so the caller can report its message.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out LoginResponse
	if _, err := c.doJSON(ctx, "login", http.MethodPost, "/login", "", req, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("login reply", "status", out.Status)
	return &out, nil
}

// Quota fetches the remaining quota with the bearer token.
func (c *Client) Quota(ctx context.Context, token string) (*QuotaResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out QuotaResponse
	status, err := c.doJSON(ctx, "quota", http.MethodGet, "/quota", token, nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, &TransportError{Op: "quota", StatusCode: status, Body: out.Message, Err: ErrUnauthorized}
	}

	c.logger.Debug("quota reply", "status", out.Status)
	return &out, nil
}

// Send posts the chain to /send and returns the streamed response body.
// The caller must close the body; closing it, cancelling ctx, or exceeding
// the read timeout all abort the underlying request.
func (c *Client) Send(ctx context.Context, token string, req SendRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling send request: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("creating send request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("User-Agent", utils.UserAgent())
	httpReq.Header.Set(RequestIDHeader, requestID)

	c.logger.Debug("sending chain",
		"conversation_id", req.ConversationID,
		"message_count", len(req.Messages),
		"request_id", requestID,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel(nil)
		return nil, &TransportError{Op: "send", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel(nil)
		defer resp.Body.Close()
		return nil, statusError("send", resp)
	}

	return newStreamBody(ctx, resp.Body, cancel, c.readTimeout), nil
}

// doJSON performs one request/response call and decodes the JSON reply into
// out, returning the HTTP status.
func (c *Client) doJSON(ctx context.Context, op, method, path, token string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshaling %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating %s request: %w", op, err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set("User-Agent", utils.UserAgent())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	// The backend answers failures with a JSON body too, so a decodable
	// reply wins over the HTTP status.
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, statusErrorBody(op, resp.StatusCode, raw)
		}
		return resp.StatusCode, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decoding reply: %w", err),
		}
	}

	return resp.StatusCode, nil
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return statusErrorBody(op, resp.StatusCode, raw)
}

func statusErrorBody(op string, status int, raw []byte) error {
	te := &TransportError{
		Op:         op,
		StatusCode: status,
		Body:       utils.Truncate(strings.TrimSpace(string(raw)), maxErrorBody),
	}
	if status == http.StatusUnauthorized {
		te.Err = ErrUnauthorized
	}
	return te
}
