// Package chatcmder provides the chat command, an interactive session that
// keeps the conversation in named chains and streams every answer.
package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/cmd/chatchain/cmdutil"
	"github.com/papercomputeco/chatchain/pkg/cliui"
	"github.com/papercomputeco/chatchain/pkg/session"
)

const chatLongDesc string = `Start an interactive chat session.

Every message you type is appended to the current chain, the whole chain is
sent to the backend and the streamed answer is appended after it, so the
conversation carries its context. Chains live only as long as the session.

Commands:
  /start [id]     Start (or reset) a chain and switch to it; a new id is
                  generated when none is given
  /switch <id>    Switch to an existing chain
  /system <text>  Add a system message to the current chain
  /chains         List chains
  /history        Show the current chain
  /quota          Show the remaining quota
  /help           Show this list
  /exit           Leave (Ctrl+D works too)

A token stored by "chatchain login" in another terminal is picked up
without restarting.

Examples:
  chatchain chat
  chatchain chat --chain research --system "Cite your sources."`

const chatShortDesc string = "Interactive chat with streamed answers"

const helpText = `/start [id]  /switch <id>  /system <text>  /chains  /history  /quota  /exit`

type chatCommander struct {
	env     *cmdutil.Env
	sess    *session.Session
	out     io.Writer
	errOut  io.Writer
	current string
	system  string
	plain   bool
}

func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := cmdutil.Load(cmd, cmdutil.ChatFlags...)
			if err != nil {
				return err
			}
			defer env.Close()

			sess, err := env.Session()
			if err != nil {
				return err
			}

			c := &chatCommander{
				env:    env,
				sess:   sess,
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				system: env.Viper.GetString("chat.system_prompt"),
				plain:  env.Viper.GetBool("chat.plain"),
			}
			return c.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmdutil.AddChatFlags(cmd)

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.env.WatchToken(ctx, c.sess)

	if err := c.startChain(c.env.Viper.GetString("chat.default_chain")); err != nil {
		return err
	}

	if !c.sess.LoggedIn() {
		fmt.Fprintf(c.out, "  %s Not logged in to %s; run \"chatchain login\" first.\n",
			cliui.FailMark, c.env.BackendURL())
	}
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /help for commands, /exit or Ctrl+D to quit."))

	prompter := cliui.NewPrompter(in, c.out)

	for ctx.Err() == nil {
		line, err := prompter.Line(cliui.UserPrompt)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			exit, err := c.command(ctx, input)
			if err != nil {
				cliui.Fail(c.errOut, err)
			}
			if exit {
				break
			}
			continue
		}

		if err := c.send(ctx, input); err != nil {
			cliui.Fail(c.errOut, err)
		}
	}

	fmt.Fprintln(c.out)
	return nil
}

// send appends input to the current chain and streams the answer. A failed
// send leaves the chain as it was so the message can be retried.
func (c *chatCommander) send(ctx context.Context, input string) error {
	if err := c.sess.AddMessage(session.RoleUser, input, c.current); err != nil {
		return err
	}

	fmt.Fprint(c.out, cliui.AssistantPrompt)
	res, err := cmdutil.StreamAnswer(ctx, c.sess, c.current, c.plain, c.out, c.errOut)
	if err != nil {
		fmt.Fprintln(c.out)
		if dropErr := c.sess.DropLast(c.current); dropErr != nil {
			return errors.Join(err, dropErr)
		}
		return err
	}
	fmt.Fprintln(c.out)

	return c.sess.AddMessage(session.RoleAssistant, res.Text, c.current)
}

// command runs a slash command and reports whether the session should end.
func (c *chatCommander) command(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(helpText))

	case "/start":
		if arg == "" {
			arg = session.NewChainID()
		}
		return false, c.startChain(arg)

	case "/switch":
		if !c.sess.HasChain(arg) {
			return false, &session.ChainNotFoundError{ID: arg}
		}
		c.current = arg
		fmt.Fprintf(c.out, "  %s Switched to %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(arg))

	case "/system":
		if arg == "" {
			return false, errors.New("usage: /system <text>")
		}
		if err := c.sess.AddMessage(session.RoleSystem, arg, c.current); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "  %s System message added\n", cliui.SuccessMark)

	case "/chains":
		for _, id := range c.sess.Chains() {
			marker := " "
			if id == c.current {
				marker = "*"
			}
			msgs, _ := c.sess.Messages(id)
			fmt.Fprintf(c.out, "  %s %s %s\n", marker, cliui.KeyStyle.Render(id),
				cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(msgs))))
		}

	case "/history":
		msgs, err := c.sess.Messages(c.current)
		if err != nil {
			return false, err
		}
		if len(msgs) == 0 {
			fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("(empty chain)"))
		}
		for _, m := range msgs {
			fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render(string(m.Role)+":"), m.Content)
		}

	case "/quota":
		quota, err := c.sess.CheckQuota(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Quota:"), cliui.ValueStyle.Render(quota))

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}

	return false, nil
}

// startChain creates or resets chain id, opens it with the configured system
// prompt and makes it current.
func (c *chatCommander) startChain(id string) error {
	c.sess.StartChain(id)
	if c.system != "" {
		if err := c.sess.AddMessage(session.RoleSystem, c.system, id); err != nil {
			return err
		}
	}
	c.current = id
	fmt.Fprintf(c.out, "  %s Chain %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(id))
	return nil
}
