// Package logincmder provides the login command, which exchanges a username
// and password for a backend token and stores it.
package logincmder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/cmd/chatchain/cmdutil"
	"github.com/papercomputeco/chatchain/pkg/cliui"
)

const loginLongDesc string = `Log in to the chat backend.

The token returned by the backend is stored in credentials.toml in the
.chatchain/ directory, keyed by backend URL, and used by send, chat and
quota. The password is read without echo on a terminal; when stdin is a
pipe the first line is the username (unless --username is given) and the
next line the password.

Examples:
  chatchain login
  chatchain login --username student
  chatchain login --backend https://chat.example.com
  printf 'student\nsecret\n' | chatchain login`

const loginShortDesc string = "Log in and store the backend token"

type loginCommander struct {
	username string
}

func NewLoginCmd() *cobra.Command {
	cmder := &loginCommander{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: loginShortDesc,
		Long:  loginLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.username, "username", "u", "", "Username (prompted when omitted)")
	cmdutil.AddBackendFlags(cmd)

	return cmd
}

func (c *loginCommander) run(cmd *cobra.Command) error {
	env, err := cmdutil.Load(cmd, cmdutil.BackendFlags...)
	if err != nil {
		return err
	}
	defer env.Close()

	sess, err := env.Session()
	if err != nil {
		return err
	}

	prompter := cliui.NewPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

	username := strings.TrimSpace(c.username)
	if username == "" {
		username, err = prompter.Line("Username: ")
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(username)
	}
	if username == "" {
		return errors.New("username cannot be empty")
	}

	password, err := prompter.Password("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password cannot be empty")
	}

	var token string
	err = cliui.Step(cmd.ErrOrStderr(), "Logging in to "+env.BackendURL(), func() error {
		token, err = sess.Login(cmd.Context(), username, password)
		return err
	})
	if err != nil {
		return err
	}

	if err := env.Creds.SetToken(env.BackendURL(), username, token); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Logged in as %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(username))
	return nil
}
