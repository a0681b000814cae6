package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chatchain/pkg/session"
)

var (
	sendToolName    = "send"
	sendDescription = "Send a message on a conversation chain and return the streamed answer. The chain keeps earlier messages, so follow-up questions carry their context. A chain that does not exist yet is started first."

	historyToolName    = "history"
	historyDescription = "Return the messages of a conversation chain, oldest first, or list the chains when no chain is given."

	quotaToolName    = "quota"
	quotaDescription = "Return the remaining quota reported by the chat backend."
)

// SendInput represents the input arguments for the send tool.
type SendInput struct {
	Message  string `json:"message" jsonschema:"the user message to send"`
	Chain    string `json:"chain,omitempty" jsonschema:"conversation chain id (default: the configured default chain)"`
	NewChain bool   `json:"new_chain,omitempty" jsonschema:"reset the chain before sending"`
}

// SendOutput represents the output of the send tool.
type SendOutput struct {
	Chain    string   `json:"chain"`
	Answer   string   `json:"answer"`
	Done     bool     `json:"done"`
	Warnings []string `json:"warnings,omitempty"`
}

// HistoryInput represents the input arguments for the history tool.
type HistoryInput struct {
	Chain string `json:"chain,omitempty" jsonschema:"conversation chain id; omit to list chains"`
}

// Message is a single chain entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryOutput represents the output of the history tool.
type HistoryOutput struct {
	Chain    string    `json:"chain,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Chains   []string  `json:"chains,omitempty"`
}

// QuotaInput takes no arguments.
type QuotaInput struct{}

// QuotaOutput represents the output of the quota tool.
type QuotaOutput struct {
	Quota string `json:"quota"`
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// handleSend appends the message to the chain, streams the answer and
// appends it. A failed send leaves the chain unchanged.
func (s *Server) handleSend(ctx context.Context, _ *mcp.CallToolRequest, input SendInput) (*mcp.CallToolResult, SendOutput, error) {
	logger := s.config.Logger
	sess := s.config.Session

	if input.Message == "" {
		return toolError("message is required"), SendOutput{}, nil
	}

	chain := input.Chain
	if chain == "" {
		chain = s.config.DefaultChain
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if input.NewChain || !sess.HasChain(chain) {
		sess.StartChain(chain)
		if s.config.SystemPrompt != "" {
			if err := sess.AddMessage(session.RoleSystem, s.config.SystemPrompt, chain); err != nil {
				return toolError("Failed to start chain: %v", err), SendOutput{}, nil
			}
		}
	}

	if err := sess.AddMessage(session.RoleUser, input.Message, chain); err != nil {
		return toolError("Failed to add message: %v", err), SendOutput{}, nil
	}

	logger.Debug("MCP send request", "chain", chain)

	res, err := sess.SendAndStreamResult(ctx, chain)
	if err != nil {
		logger.Error("send failed", "chain", chain, "error", err)
		if dropErr := sess.DropLast(chain); dropErr != nil {
			logger.Error("could not drop unanswered message", "chain", chain, "error", dropErr)
		}
		return toolError("Send failed: %v", err), SendOutput{}, nil
	}

	if err := sess.AddMessage(session.RoleAssistant, res.Text, chain); err != nil {
		return toolError("Failed to store answer: %v", err), SendOutput{}, nil
	}

	out := SendOutput{
		Chain:  chain,
		Answer: res.Text,
		Done:   res.Done,
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}

	return nil, out, nil
}

func (s *Server) handleHistory(_ context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	sess := s.config.Session

	if input.Chain == "" {
		return nil, HistoryOutput{Chains: sess.Chains()}, nil
	}

	msgs, err := sess.Messages(input.Chain)
	if err != nil {
		return toolError("%v", err), HistoryOutput{}, nil
	}

	out := HistoryOutput{Chain: input.Chain, Messages: make([]Message, len(msgs))}
	for i, m := range msgs {
		out.Messages[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	return nil, out, nil
}

func (s *Server) handleQuota(ctx context.Context, _ *mcp.CallToolRequest, _ QuotaInput) (*mcp.CallToolResult, QuotaOutput, error) {
	quota, err := s.config.Session.CheckQuota(ctx)
	if err != nil {
		s.config.Logger.Error("quota failed", "error", err)
		return toolError("Quota check failed: %v", err), QuotaOutput{}, nil
	}
	return nil, QuotaOutput{Quota: quota}, nil
}
