// Package mcpcmder provides the mcp command, which exposes chatchain
// conversations to MCP clients.
package mcpcmder

import (
	"fmt"
	"slices"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/api/mcp"
	"github.com/papercomputeco/chatchain/cmd/chatchain/cmdutil"
	"github.com/papercomputeco/chatchain/pkg/config"
)

const mcpLongDesc string = `Serve chatchain as an MCP (Model Context Protocol) server.

Tools:
  send      Send a message on a chain and return the streamed answer
  history   Show a chain, or list chains
  quota     Show the remaining backend quota

By default the server speaks MCP over stdin and stdout, which is how most
agents launch tool servers. With --http it serves the streamable HTTP
transport at /mcp instead. Log in with "chatchain login" first; chains live
as long as the server. --log-file keeps a JSON copy of the server log,
which is useful under stdio where stderr is often discarded.

Examples:
  chatchain mcp
  chatchain mcp --http :9594 --system "Answer briefly."
  chatchain mcp --log-file ~/.chatchain/mcp.log`

const mcpShortDesc string = "Serve chat tools over MCP"

type mcpCommander struct {
	httpAddr string
	logFile  string
}

var mcpFlags = append(slices.Clone(cmdutil.ChatFlags), config.FlagLogFile)

func NewMCPCmd() *cobra.Command {
	cmder := &mcpCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.httpAddr, "http", "", "Serve the streamable HTTP transport on this address instead of stdio")
	config.AddStringFlag(cmd, config.Registry, config.FlagLogFile, &cmder.logFile)
	cmdutil.AddChatFlags(cmd)

	return cmd
}

func (c *mcpCommander) run(cmd *cobra.Command) error {
	env, err := cmdutil.Load(cmd, mcpFlags...)
	if err != nil {
		return err
	}
	defer env.Close()

	sess, err := env.Session()
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(mcp.Config{
		Session:      sess,
		DefaultChain: env.Viper.GetString("chat.default_chain"),
		SystemPrompt: env.Viper.GetString("chat.system_prompt"),
		Logger:       env.Logger.With("component", "mcp"),
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	ctx := cmd.Context()
	go env.WatchToken(ctx, sess)

	if !sess.LoggedIn() {
		env.Logger.Warn("not logged in; tools will fail until \"chatchain login\" runs", "backend", env.BackendURL())
	}

	if c.httpAddr == "" {
		env.Logger.Info("serving MCP over stdio")
		return server.RunStdio(ctx)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.All("/mcp", adaptor.HTTPHandler(server.Handler()))

	errChan := make(chan error, 1)
	go func() {
		env.Logger.Info("serving MCP over HTTP", "listen", c.httpAddr)
		errChan <- app.Listen(c.httpAddr)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return app.Shutdown()
	}
}
