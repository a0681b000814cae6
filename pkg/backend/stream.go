package backend

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// streamBody wraps a streamed response body. Each Read arms an idle timer;
// if it fires the request context is cancelled, which unblocks the read.
type streamBody struct {
	ctx     context.Context
	body    io.ReadCloser
	cancel  context.CancelCauseFunc
	timeout time.Duration
	timer   *time.Timer

	closeOnce sync.Once
	closeErr  error
}

func newStreamBody(ctx context.Context, body io.ReadCloser, cancel context.CancelCauseFunc, timeout time.Duration) *streamBody {
	sb := &streamBody{
		ctx:     ctx,
		body:    body,
		cancel:  cancel,
		timeout: timeout,
	}
	if timeout > 0 {
		sb.timer = time.AfterFunc(timeout, func() { cancel(ErrReadTimeout) })
		sb.timer.Stop()
	}
	return sb
}

func (s *streamBody) Read(p []byte) (int, error) {
	if s.timer != nil {
		s.timer.Reset(s.timeout)
		defer s.timer.Stop()
	}

	n, err := s.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		if cause := context.Cause(s.ctx); errors.Is(cause, ErrReadTimeout) {
			return n, ErrReadTimeout
		}
	}
	return n, err
}

// Close releases the connection and cancels the request. It is safe to call
// more than once.
func (s *streamBody) Close() error {
	s.closeOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.closeErr = s.body.Close()
		s.cancel(nil)
	})
	return s.closeErr
}
