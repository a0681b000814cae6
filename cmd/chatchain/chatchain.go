// Package chatchaincmder is the root of the chatchain command tree.
package chatchaincmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatchain/cmd/chatchain/chat"
	configcmder "github.com/papercomputeco/chatchain/cmd/chatchain/config"
	logincmder "github.com/papercomputeco/chatchain/cmd/chatchain/login"
	logoutcmder "github.com/papercomputeco/chatchain/cmd/chatchain/logout"
	mcpcmder "github.com/papercomputeco/chatchain/cmd/chatchain/mcp"
	quotacmder "github.com/papercomputeco/chatchain/cmd/chatchain/quota"
	sendcmder "github.com/papercomputeco/chatchain/cmd/chatchain/send"
	servecmder "github.com/papercomputeco/chatchain/cmd/chatchain/serve"
	versioncmder "github.com/papercomputeco/chatchain/cmd/version"
	"github.com/papercomputeco/chatchain/pkg/cliui"
)

const chatchainLongDesc string = `chatchain keeps named conversation chains and streams answers
from a chat backend.

Get started against the built-in development backend:
  chatchain serve                 Run the development backend
  chatchain login                 Log in and store the token
  chatchain send "hello there"    Send one message and print the answer
  chatchain chat                  Start an interactive session
  chatchain mcp                   Offer the chat tools to an MCP client

Settings come from flags, CHATCHAIN_* environment variables and
config.toml in the .chatchain/ directory, in that order.`

const chatchainShortDesc string = "chatchain - streamed chat sessions"

func NewChatchainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatchain",
		Short:         chatchainShortDesc,
		Long:          chatchainLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			noColor, _ := cmd.Flags().GetBool("no-color")
			cliui.SetColor(!noColor)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chatchain/ config directory")
	cmd.PersistentFlags().Bool("no-color", false, "Disable coloured output")

	// Add subcommands
	cmd.AddCommand(logincmder.NewLoginCmd())
	cmd.AddCommand(logoutcmder.NewLogoutCmd())
	cmd.AddCommand(quotacmder.NewQuotaCmd())
	cmd.AddCommand(sendcmder.NewSendCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(mcpcmder.NewMCPCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
