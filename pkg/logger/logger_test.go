package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatchain/pkg/logger"
)

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	Expect(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records with attributes", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("logged in", "username", "student")

			Expect(buf.String()).To(ContainSubstring("logged in"))
			Expect(buf.String()).To(ContainSubstring("username=student"))
		})

		It("shows debug records only in debug mode", func() {
			var shown, hidden bytes.Buffer
			logger.New(logger.WithWriter(&shown), logger.WithDebug(true)).Debug("stream complete")
			logger.New(logger.WithWriter(&hidden), logger.WithDebug(false)).Debug("stream complete")

			Expect(shown.String()).To(ContainSubstring("stream complete"))
			Expect(hidden.String()).To(BeEmpty())
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Warn("malformed payload line", "chain", "default", "warnings", 2)

			parsed := decodeLine(&buf)
			Expect(parsed["msg"]).To(Equal("malformed payload line"))
			Expect(parsed["level"]).To(Equal("WARN"))
			Expect(parsed["chain"]).To(Equal("default"))
			Expect(parsed["warnings"]).To(BeNumerically("==", 2))
		})

		It("prefers JSON over pretty when both are set", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithPretty(true))
			l.Info("serving")

			Expect(decodeLine(&buf)["msg"]).To(Equal("serving"))
		})

		It("writes pretty records through charmbracelet/log", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
			l.Info("development backend listening", "addr", ":9593")

			Expect(buf.String()).To(ContainSubstring("development backend listening"))
			Expect(buf.String()).To(ContainSubstring(":9593"))
		})

		It("adds the source location when asked", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true)).Info("here")

			Expect(decodeLine(&buf)).To(HaveKey("source"))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level", func() {
			l := logger.Nop()
			for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
				Expect(l.Handler().Enabled(context.Background(), lvl)).To(BeFalse())
			}
		})

		It("survives derived loggers", func() {
			Expect(func() {
				logger.Nop().With("chain", "c").WithGroup("stream").Error("msg")
			}).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("dispatches to every logger", func() {
			var text, js bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&text)),
				logger.New(logger.WithWriter(&js), logger.WithJSON(true)),
			)

			multi.Info("request", "path", "/send")

			Expect(text.String()).To(ContainSubstring("path=/send"))
			Expect(decodeLine(&js)["path"]).To(Equal("/send"))
		})

		It("respects each logger's level", func() {
			var quiet, loud bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&quiet)),
				logger.New(logger.WithWriter(&loud), logger.WithDebug(true)),
			)

			multi.Debug("chunk read")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("chunk read"))
		})

		It("carries attributes and groups to children", func() {
			var buf bytes.Buffer
			multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))

			multi.With("component", "stub").WithGroup("request").Info("served", "method", "POST")

			parsed := decodeLine(&buf)
			Expect(parsed["component"]).To(Equal("stub"))
			group, ok := parsed["request"].(map[string]any)
			Expect(ok).To(BeTrue(), "expected 'request' group in JSON output")
			Expect(group["method"]).To(Equal("POST"))
		})
	})
})
