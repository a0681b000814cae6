package mcp_test

import (
	"context"
	"encoding/json"
	"net"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatchain/api/mcp"
	"github.com/papercomputeco/chatchain/pkg/backend"
	"github.com/papercomputeco/chatchain/pkg/backend/stub"
	chatlogger "github.com/papercomputeco/chatchain/pkg/logger"
	"github.com/papercomputeco/chatchain/pkg/session"
)

var _ = Describe("MCP Server", func() {
	var (
		ctx        context.Context
		stubServer *stub.Server
		sess       *session.Session
		server     *mcp.Server
		client     *sdk.ClientSession
	)

	// call invokes a tool and decodes its JSON text content into out.
	call := func(name string, args map[string]any, out any) *sdk.CallToolResult {
		res, err := client.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
		Expect(err).NotTo(HaveOccurred())
		if !res.IsError && out != nil {
			Expect(res.Content).NotTo(BeEmpty())
			text, ok := res.Content[0].(*sdk.TextContent)
			Expect(ok).To(BeTrue())
			Expect(json.Unmarshal([]byte(text.Text), out)).To(Succeed())
		}
		return res
	}

	BeforeEach(func() {
		ctx = context.Background()

		stubServer = stub.NewServer(stub.Config{Quota: 5, ChunkSize: 3})
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		go func() {
			_ = stubServer.RunWithListener(ln)
		}()
		DeferCleanup(stubServer.Shutdown)

		sess = newSession("http://" + ln.Addr().String())

		server, err = mcp.NewServer(mcp.Config{
			Session:      sess,
			SystemPrompt: "be brief",
			Logger:       chatlogger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		clientTransport, serverTransport := sdk.NewInMemoryTransports()
		serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(serverSession.Close)

		c := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0"}, nil)
		client, err = c.Connect(ctx, clientTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(client.Close)
	})

	Describe("NewServer", func() {
		It("returns an error when session is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: chatlogger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("session is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Session: sess})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("lists the chat tools", func() {
			res, err := client.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, 0, len(res.Tools))
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("send", "history", "quota"))
		})
	})

	Describe("send", func() {
		It("answers on the default chain and keeps the exchange", func() {
			var out mcp.SendOutput
			res := call("send", map[string]any{"message": "hello"}, &out)
			Expect(res.IsError).To(BeFalse())
			Expect(out.Chain).To(Equal("default"))
			Expect(out.Answer).To(Equal("You said: hello"))
			Expect(out.Done).To(BeTrue())

			msgs, err := sess.Messages("default")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]session.Message{
				{Role: session.RoleSystem, Content: "be brief"},
				{Role: session.RoleUser, Content: "hello"},
				{Role: session.RoleAssistant, Content: "You said: hello"},
			}))
		})

		It("resets the chain on request", func() {
			call("send", map[string]any{"message": "one", "chain": "c"}, &mcp.SendOutput{})
			call("send", map[string]any{"message": "two", "chain": "c", "new_chain": true}, &mcp.SendOutput{})

			msgs, err := sess.Messages("c")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[1].Content).To(Equal("two"))
		})

		It("reports a missing message as a tool error", func() {
			res := call("send", map[string]any{"message": ""}, nil)
			Expect(res.IsError).To(BeTrue())
		})

		It("leaves the chain unchanged when the send fails", func() {
			sess.Logout()

			res := call("send", map[string]any{"message": "hello", "chain": "c"}, nil)
			Expect(res.IsError).To(BeTrue())

			msgs, err := sess.Messages("c")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]session.Message{{Role: session.RoleSystem, Content: "be brief"}}))
		})
	})

	Describe("history", func() {
		It("lists chains without an argument", func() {
			sess.StartChain("a")
			sess.StartChain("b")

			var out mcp.HistoryOutput
			call("history", map[string]any{}, &out)
			Expect(out.Chains).To(Equal([]string{"a", "b"}))
		})

		It("returns the messages of a chain", func() {
			sess.StartChain("a")
			Expect(sess.AddMessage(session.RoleUser, "hi", "a")).To(Succeed())

			var out mcp.HistoryOutput
			call("history", map[string]any{"chain": "a"}, &out)
			Expect(out.Messages).To(Equal([]mcp.Message{{Role: "user", Content: "hi"}}))
		})

		It("reports unknown chains", func() {
			res := call("history", map[string]any{"chain": "missing"}, nil)
			Expect(res.IsError).To(BeTrue())
		})
	})

	Describe("quota", func() {
		It("returns the backend value", func() {
			var out mcp.QuotaOutput
			call("quota", map[string]any{}, &out)
			Expect(out.Quota).To(Equal("5"))
		})
	})
})

func newSession(base string) *session.Session {
	client, err := backend.NewClient(backend.Config{BaseURL: base})
	Expect(err).NotTo(HaveOccurred())

	sess := session.New(client)
	_, err = sess.Login(context.Background(), "alice", "secret")
	Expect(err).NotTo(HaveOccurred())
	return sess
}
