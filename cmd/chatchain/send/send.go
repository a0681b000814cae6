// Package sendcmder provides the send command, a one-shot request: start a
// chain, add one user message and print the streamed answer.
package sendcmder

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/cmd/chatchain/cmdutil"
	"github.com/papercomputeco/chatchain/pkg/session"
)

const sendLongDesc string = `Send one message and print the streamed answer.

A fresh chain is started for the request, optionally opened by a system
prompt. When no message argument is given the message is read from stdin.
Answers are rendered as markdown unless --plain is set, in which case the
text is printed as it arrives.

Examples:
  chatchain send "What is a merkle tree?"
  chatchain send --system "Answer in one sentence." "Why is the sky blue?"
  git diff | chatchain send --plain --chain review`

const sendShortDesc string = "Send one message and print the answer"

func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: sendShortDesc,
		Long:  sendLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args)
		},
	}

	cmdutil.AddChatFlags(cmd)

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	if message == "" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading message from stdin: %w", err)
		}
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		return errors.New("message cannot be empty")
	}

	env, err := cmdutil.Load(cmd, cmdutil.ChatFlags...)
	if err != nil {
		return err
	}
	defer env.Close()

	sess, err := env.Session()
	if err != nil {
		return err
	}

	chain := env.Viper.GetString("chat.default_chain")
	sess.StartChain(chain)

	if system := env.Viper.GetString("chat.system_prompt"); system != "" {
		if err := sess.AddMessage(session.RoleSystem, system, chain); err != nil {
			return err
		}
	}
	if err := sess.AddMessage(session.RoleUser, message, chain); err != nil {
		return err
	}

	_, err = cmdutil.StreamAnswer(cmd.Context(), sess, chain, env.Viper.GetBool("chat.plain"), cmd.OutOrStdout(), cmd.ErrOrStderr())
	return err
}
