package cmdutil

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/pkg/cliui"
	"github.com/papercomputeco/chatchain/pkg/config"
	"github.com/papercomputeco/chatchain/pkg/session"
	"github.com/papercomputeco/chatchain/pkg/sse"
)

// ChatFlags are the registry keys for commands that send chains.
var ChatFlags = append([]string{
	config.FlagChain,
	config.FlagSystemPrompt,
	config.FlagPlain,
	config.FlagStrict,
}, BackendFlags...)

// AddChatFlags registers the backend flags plus the chain, prompt and
// output flags on cmd.
func AddChatFlags(cmd *cobra.Command) {
	var (
		chain, system string
		plain, strict bool
	)
	config.AddStringFlag(cmd, config.Registry, config.FlagChain, &chain)
	config.AddStringFlag(cmd, config.Registry, config.FlagSystemPrompt, &system)
	config.AddBoolFlag(cmd, config.Registry, config.FlagPlain, &plain)
	config.AddBoolFlag(cmd, config.Registry, config.FlagStrict, &strict)
	AddBackendFlags(cmd)
}

// StreamAnswer sends chain and prints the answer to out. In plain mode
// fragments are echoed as they arrive; otherwise a spinner runs on status
// while the stream is read and the full answer is rendered as markdown.
// Cancelling ctx aborts the stream.
func StreamAnswer(ctx context.Context, sess *session.Session, chain string, plain bool, out, status io.Writer) (*sse.Result, error) {
	if plain {
		printed := false
		res, err := sess.SendAndStreamResult(ctx, chain, sse.WithFragmentHandler(func(fragment string) {
			printed = true
			fmt.Fprint(out, fragment)
		}))
		if printed {
			fmt.Fprintln(out)
		}
		return res, err
	}

	var res *sse.Result
	err := cliui.Step(status, "Waiting for answer", func() error {
		var err error
		res, err = sess.SendAndStreamResult(ctx, chain)
		return err
	})
	if err != nil {
		return nil, err
	}

	rendered, err := cliui.RenderMarkdown(res.Text)
	if err != nil {
		fmt.Fprintln(out, res.Text)
		return res, nil
	}
	fmt.Fprint(out, rendered)

	return res, nil
}
