package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatchain/pkg/backend"
)

var _ = Describe("Client", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		handler http.HandlerFunc
		client  *backend.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))

		var err error
		client, err = backend.NewClient(backend.Config{BaseURL: server.URL + "/"})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewClient", func() {
		It("requires a base URL", func() {
			_, err := backend.NewClient(backend.Config{})
			Expect(err).To(HaveOccurred())
		})

		It("trims a trailing slash", func() {
			Expect(client.BaseURL()).To(Equal(server.URL))
		})
	})

	Describe("Login", func() {
		It("posts credentials as JSON", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/login"))
				Expect(r.Header.Get("Content-Type")).To(HavePrefix("application/json"))

				var req backend.LoginRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req).To(Equal(backend.LoginRequest{Username: "user", Password: "pw"}))

				_, _ = io.WriteString(w, `{"status":"success","token":"tok-1"}`)
			}

			resp, err := client.Login(ctx, backend.LoginRequest{Username: "user", Password: "pw"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(backend.StatusSuccess))
			Expect(resp.Token).To(Equal("tok-1"))
		})

		It("returns a JSON failure reply even with an error status", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"status":"error","message":"bad password"}`)
			}

			resp, err := client.Login(ctx, backend.LoginRequest{Username: "user", Password: "nope"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("error"))
			Expect(resp.Message).To(Equal("bad password"))
		})

		It("returns a TransportError for a non-JSON error reply", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "upstream down")
			}

			_, err := client.Login(ctx, backend.LoginRequest{Username: "u", Password: "p"})
			var te *backend.TransportError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(te.Body).To(Equal("upstream down"))
		})

		It("returns a TransportError when the backend is unreachable", func() {
			server.Close()

			_, err := client.Login(ctx, backend.LoginRequest{Username: "u", Password: "p"})
			var te *backend.TransportError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.StatusCode).To(BeZero())
			Expect(te.Op).To(Equal("login"))
		})
	})

	Describe("Quota", func() {
		It("sends the bearer token and keeps the raw quota value", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer tok"))
				_, _ = io.WriteString(w, `{"status":"success","quota":12.50}`)
			}

			resp, err := client.Quota(ctx, "tok")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.QuotaString()).To(Equal("12.50"))
		})

		It("unquotes a string quota", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"status":"success","quota":"unlimited"}`)
			}

			resp, err := client.Quota(ctx, "tok")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.QuotaString()).To(Equal("unlimited"))
		})

		It("reports a 401 as unauthorized", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"status":"error","message":"not logged in"}`)
			}

			_, err := client.Quota(ctx, "stale")
			Expect(errors.Is(err, backend.ErrUnauthorized)).To(BeTrue())
		})
	})

	Describe("Send", func() {
		It("posts the chain and streams the body", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/send"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer tok"))
				Expect(r.Header.Get(backend.RequestIDHeader)).NotTo(BeEmpty())

				var req backend.SendRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req.ConversationID).To(Equal("default"))
				Expect(req.Messages).To(Equal([]backend.Message{{Role: "user", Content: "hi"}}))

				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, "data: [DONE]\n")
			}

			body, err := client.Send(ctx, "tok", backend.SendRequest{
				Messages:       []backend.Message{{Role: "user", Content: "hi"}},
				ConversationID: "default",
			})
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			raw, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal("data: [DONE]\n"))
		})

		It("returns a TransportError for a non-success status", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, "boom")
			}

			_, err := client.Send(ctx, "tok", backend.SendRequest{ConversationID: "c"})
			var te *backend.TransportError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(te.Error()).To(ContainSubstring("boom"))
		})

		It("wraps ErrUnauthorized for a 401", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}

			_, err := client.Send(ctx, "tok", backend.SendRequest{ConversationID: "c"})
			Expect(errors.Is(err, backend.ErrUnauthorized)).To(BeTrue())
		})

		It("fails a read that waits longer than the read timeout", func() {
			release := make(chan struct{})
			defer close(release)

			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				w.WriteHeader(http.StatusOK)
				w.(http.Flusher).Flush()
				select {
				case <-release:
				case <-time.After(5 * time.Second):
				}
			}

			slow, err := backend.NewClient(backend.Config{
				BaseURL:     server.URL,
				ReadTimeout: 50 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			body, err := slow.Send(ctx, "tok", backend.SendRequest{ConversationID: "c"})
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			_, err = io.ReadAll(body)
			Expect(errors.Is(err, backend.ErrReadTimeout)).To(BeTrue())
		})

		It("tolerates closing the body twice", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "data: [DONE]\n")
			}

			body, err := client.Send(ctx, "tok", backend.SendRequest{ConversationID: "c"})
			Expect(err).NotTo(HaveOccurred())
			Expect(body.Close()).To(Succeed())
			Expect(body.Close()).To(Succeed())
		})
	})

	Describe("errors", func() {
		It("formats a BackendError", func() {
			err := &backend.BackendError{Op: "quota", Message: "account disabled"}
			Expect(err.Error()).To(Equal("quota: account disabled"))
			Expect((&backend.BackendError{Op: "quota"}).Error()).To(Equal("quota: backend reported failure"))
		})
	})
})
