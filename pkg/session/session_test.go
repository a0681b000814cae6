package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatchain/pkg/backend"
	"github.com/papercomputeco/chatchain/pkg/eventstream"
	"github.com/papercomputeco/chatchain/pkg/session"
	"github.com/papercomputeco/chatchain/pkg/sse"
)

// fakeBackend records calls and replays canned replies.
type fakeBackend struct {
	mu sync.Mutex

	loginResp *backend.LoginResponse
	loginErr  error
	quotaResp *backend.QuotaResponse
	quotaErr  error
	stream    string
	sendErr   error

	calls    int
	lastSend backend.SendRequest
	closed   bool
}

type trackedBody struct {
	io.Reader
	fb *fakeBackend
}

func (b *trackedBody) Close() error {
	b.fb.mu.Lock()
	defer b.fb.mu.Unlock()
	b.fb.closed = true
	return nil
}

func (f *fakeBackend) Login(_ context.Context, _ backend.LoginRequest) (*backend.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.loginResp, f.loginErr
}

func (f *fakeBackend) Send(_ context.Context, _ string, req backend.SendRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSend = req
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &trackedBody{Reader: strings.NewReader(f.stream), fb: f}, nil
}

func (f *fakeBackend) Quota(_ context.Context, _ string) (*backend.QuotaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.quotaResp, f.quotaErr
}

const helloStream = "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n" +
	"data: [DONE]\n"

var _ = Describe("Session", func() {
	var (
		ctx context.Context
		fb  *fakeBackend
		s   *session.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		fb = &fakeBackend{
			loginResp: &backend.LoginResponse{Status: backend.StatusSuccess, Token: "tok"},
			stream:    helloStream,
		}
		s = session.New(fb)
	})

	Describe("Login", func() {
		It("stores the token on success", func() {
			token, err := s.Login(ctx, "user", "password")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("tok"))
			Expect(s.Token()).To(Equal("tok"))
			Expect(s.LoggedIn()).To(BeTrue())
		})

		It("returns an AuthError with the backend message and keeps state", func() {
			s.SetToken("old")
			fb.loginResp = &backend.LoginResponse{Status: "error", Message: "invalid credentials"}

			_, err := s.Login(ctx, "user", "bad")
			var authErr *session.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(authErr.Reason).To(Equal("invalid credentials"))
			Expect(s.Token()).To(Equal("old"))
		})

		It("passes transport failures through", func() {
			fb.loginErr = &backend.TransportError{Op: "login", Err: errors.New("connection refused")}

			_, err := s.Login(ctx, "user", "pw")
			var te *backend.TransportError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(s.LoggedIn()).To(BeFalse())
		})

		It("forgets the token on logout", func() {
			_, err := s.Login(ctx, "user", "pw")
			Expect(err).NotTo(HaveOccurred())
			s.Logout()
			Expect(s.LoggedIn()).To(BeFalse())
		})
	})

	Describe("chains", func() {
		It("fails to add a message before the chain is started", func() {
			err := s.AddMessage(session.RoleUser, "hi", "missing")
			var notFound *session.ChainNotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal("missing"))
		})

		It("appends messages in order", func() {
			s.StartChain("c")
			Expect(s.AddMessage(session.RoleSystem, "be brief", "c")).To(Succeed())
			Expect(s.AddMessage(session.RoleUser, "你好，我是学生。", "c")).To(Succeed())

			msgs, err := s.Messages("c")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]session.Message{
				{Role: session.RoleSystem, Content: "be brief"},
				{Role: session.RoleUser, Content: "你好，我是学生。"},
			}))
		})

		It("resets a chain that is started again", func() {
			s.StartChain("c")
			Expect(s.AddMessage(session.RoleUser, "hi", "c")).To(Succeed())
			s.StartChain("c")

			msgs, err := s.Messages("c")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})

		It("returns a copy that callers cannot mutate", func() {
			s.StartChain("c")
			Expect(s.AddMessage(session.RoleUser, "hi", "c")).To(Succeed())

			msgs, _ := s.Messages("c")
			msgs[0].Content = "changed"

			again, _ := s.Messages("c")
			Expect(again[0].Content).To(Equal("hi"))
		})

		It("drops the last message", func() {
			s.StartChain("c")
			Expect(s.AddMessage(session.RoleUser, "first", "c")).To(Succeed())
			Expect(s.AddMessage(session.RoleUser, "second", "c")).To(Succeed())

			Expect(s.DropLast("c")).To(Succeed())
			msgs, _ := s.Messages("c")
			Expect(msgs).To(Equal([]session.Message{{Role: session.RoleUser, Content: "first"}}))

			Expect(s.DropLast("c")).To(Succeed())
			Expect(s.DropLast("c")).To(Succeed())
			msgs, _ = s.Messages("c")
			Expect(msgs).To(BeEmpty())

			var notFound *session.ChainNotFoundError
			Expect(errors.As(s.DropLast("missing"), &notFound)).To(BeTrue())
		})

		It("rejects unknown roles", func() {
			s.StartChain("c")
			err := s.AddMessage(session.Role("tool"), "x", "c")
			Expect(errors.Is(err, session.ErrInvalidRole)).To(BeTrue())
		})

		It("lists and deletes chains", func() {
			s.StartChain("b")
			s.StartChain("a")
			Expect(s.Chains()).To(Equal([]string{"a", "b"}))
			Expect(s.HasChain("a")).To(BeTrue())

			Expect(s.DeleteChain("a")).To(Succeed())
			Expect(s.Chains()).To(Equal([]string{"b"}))

			var notFound *session.ChainNotFoundError
			Expect(errors.As(s.DeleteChain("a"), &notFound)).To(BeTrue())
		})

		It("parses roles", func() {
			r, err := session.ParseRole("assistant")
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(session.RoleAssistant))

			_, err = session.ParseRole("robot")
			Expect(err).To(MatchError(session.ErrInvalidRole))
		})

		It("generates distinct chain ids", func() {
			Expect(session.NewChainID()).NotTo(Equal(session.NewChainID()))
		})
	})

	Describe("SendAndStream", func() {
		It("fails with an AuthError and no network call when logged out", func() {
			s.StartChain("c")

			_, err := s.SendAndStream(ctx, "c")
			var authErr *session.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(fb.calls).To(BeZero())
		})

		It("fails with ChainNotFoundError for an unknown chain", func() {
			_, err := s.Login(ctx, "user", "pw")
			Expect(err).NotTo(HaveOccurred())
			s.StartChain("c")
			Expect(s.AddMessage(session.RoleUser, "hi", "c")).To(Succeed())

			_, err = s.SendAndStream(ctx, "other")
			var notFound *session.ChainNotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("sends the chain and returns the assembled text", func() {
			_, err := s.Login(ctx, "user", "pw")
			Expect(err).NotTo(HaveOccurred())
			s.StartChain("c")
			Expect(s.AddMessage(session.RoleUser, "hi", "c")).To(Succeed())

			text, err := s.SendAndStream(ctx, "c")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Hello"))

			Expect(fb.lastSend.ConversationID).To(Equal("c"))
			Expect(fb.lastSend.Messages).To(Equal([]backend.Message{{Role: "user", Content: "hi"}}))
			Expect(fb.closed).To(BeTrue())
		})

		It("does not modify the chain", func() {
			s.SetToken("tok")
			s.StartChain("c")
			Expect(s.AddMessage(session.RoleUser, "hi", "c")).To(Succeed())

			_, err := s.SendAndStream(ctx, "c")
			Expect(err).NotTo(HaveOccurred())

			msgs, _ := s.Messages("c")
			Expect(msgs).To(HaveLen(1))
		})

		It("closes the body when the stream fails", func() {
			s.SetToken("tok")
			s.StartChain("c")
			fb.stream = "data: {broken\n"

			_, err := s.SendAndStream(ctx, "c", sse.WithStrict(true))
			Expect(errors.Is(err, sse.ErrMalformedPayload)).To(BeTrue())
			Expect(fb.closed).To(BeTrue())
		})

		It("exposes warnings through the full result", func() {
			s.SetToken("tok")
			s.StartChain("c")
			fb.stream = "data: oops\n" + helloStream

			res, err := s.SendAndStreamResult(ctx, "c")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Text).To(Equal("Hello"))
			Expect(res.Warnings).To(HaveLen(1))
		})

		It("turns a rejected token into an AuthError", func() {
			s.SetToken("stale")
			s.StartChain("c")
			fb.sendErr = &backend.TransportError{Op: "send", StatusCode: 401, Err: backend.ErrUnauthorized}

			_, err := s.SendAndStream(ctx, "c")
			var authErr *session.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
		})

		It("reports cancellation", func() {
			s.SetToken("tok")
			s.StartChain("c")
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := s.SendAndStream(cctx, "c")
			Expect(errors.Is(err, sse.ErrStreamCancelled)).To(BeTrue())
			Expect(fb.closed).To(BeTrue())
		})

		It("streams several chains concurrently", func() {
			s.SetToken("tok")
			ids := []string{"a", "b", "c", "d"}
			for _, id := range ids {
				s.StartChain(id)
			}

			var wg sync.WaitGroup
			for _, id := range ids {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					text, err := s.SendAndStream(ctx, id)
					Expect(err).NotTo(HaveOccurred())
					Expect(text).To(Equal("Hello"))
				}()
			}
			wg.Wait()
		})
	})

	Describe("CheckQuota", func() {
		It("fails with an AuthError when logged out", func() {
			_, err := s.CheckQuota(ctx)
			var authErr *session.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(fb.calls).To(BeZero())
		})

		It("returns the numeric value unchanged", func() {
			s.SetToken("tok")
			fb.quotaResp = &backend.QuotaResponse{Status: backend.StatusSuccess, Quota: json.RawMessage("42")}

			q, err := s.CheckQuota(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(q).To(Equal("42"))
		})

		It("returns a string value unchanged", func() {
			s.SetToken("tok")
			fb.quotaResp = &backend.QuotaResponse{Status: backend.StatusSuccess, Quota: json.RawMessage(`"1,000 tokens"`)}

			q, err := s.CheckQuota(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(q).To(Equal("1,000 tokens"))
		})

		It("returns a BackendError for an application failure", func() {
			s.SetToken("tok")
			fb.quotaResp = &backend.QuotaResponse{Status: "error", Message: "account disabled"}

			_, err := s.CheckQuota(ctx)
			var be *backend.BackendError
			Expect(errors.As(err, &be)).To(BeTrue())
			Expect(be.Message).To(Equal("account disabled"))
		})
	})
})

type recordingPublisher struct {
	events []*eventstream.TurnCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

var _ = Describe("turn events", func() {
	var (
		ctx context.Context
		fb  *fakeBackend
		pub *recordingPublisher
		s   *session.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		fb = &fakeBackend{stream: helloStream}
		pub = &recordingPublisher{}
		s = session.New(fb,
			session.WithToken("tok"),
			session.WithPublisher(pub, eventstream.EventSource{Backend: "http://backend", Client: "test"}),
		)
		s.StartChain("c1")
		Expect(s.AddMessage(session.RoleUser, "hi", "c1")).To(Succeed())
	})

	It("publishes one event per answered send", func() {
		_, err := s.SendAndStream(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())

		Expect(pub.events).To(HaveLen(1))
		ev := pub.events[0]
		Expect(ev.Chain).To(Equal("c1"))
		Expect(ev.Answer).To(Equal("Hello"))
		Expect(ev.Source.Client).To(Equal("test"))
		Expect(ev.Stream.Done).To(BeTrue())
		Expect(ev.Messages).To(Equal([]eventstream.Message{{Role: "user", Content: "hi"}}))
	})

	It("does not publish failed sends", func() {
		fb.sendErr = &backend.TransportError{Op: "send", Err: errors.New("refused")}

		_, err := s.SendAndStream(ctx, "c1")
		Expect(err).To(HaveOccurred())
		Expect(pub.events).To(BeEmpty())
	})

	It("keeps the answer when publishing fails", func() {
		pub.err = errors.New("broker down")

		text, err := s.SendAndStream(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Hello"))
	})
})
