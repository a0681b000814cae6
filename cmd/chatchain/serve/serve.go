// Package servecmder provides the serve command, which runs the development
// chat backend.
package servecmder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/cmd/chatchain/cmdutil"
	"github.com/papercomputeco/chatchain/pkg/backend/stub"
	"github.com/papercomputeco/chatchain/pkg/config"
)

type ServeCommander struct {
	listen     string
	quota      uint
	logFile    string
	users      []string
	chunkSize  int
	chunkDelay time.Duration
}

const serveLongDesc string = `Run the development chat backend.

The backend implements /login, /send and /quota like the real service and
answers every chain by echoing its last user message. Answers are streamed
in small chunks so clients see lines and multi-byte characters split across
reads.

With no --user flags any non-empty username and password is accepted.
--quota 0 gives every login an exhausted quota. --log-file keeps a JSON copy
of the server log.

Examples:
  chatchain serve
  chatchain serve --listen :8080 --quota 5
  chatchain serve --user alice:secret --chunk-delay 50ms
  chatchain serve --quota 0 --log-file stub.log`

const serveShortDesc string = "Run the development chat backend"

var serveFlags = []string{config.FlagServeListen, config.FlagServeQuota, config.FlagLogFile}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Registry, config.FlagServeListen, &cmder.listen)
	config.AddUintFlag(cmd, config.Registry, config.FlagServeQuota, &cmder.quota)
	config.AddStringFlag(cmd, config.Registry, config.FlagLogFile, &cmder.logFile)
	cmd.Flags().StringSliceVar(&cmder.users, "user", nil, "Accepted credentials as name:password (repeatable)")
	cmd.Flags().IntVar(&cmder.chunkSize, "chunk-size", 0, "Bytes per streamed chunk (0 uses the built-in size)")
	cmd.Flags().DurationVar(&cmder.chunkDelay, "chunk-delay", 0, "Pause between streamed chunks")

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	env, err := cmdutil.Load(cmd, serveFlags...)
	if err != nil {
		return err
	}
	defer env.Close()

	users, err := parseUsers(c.users)
	if err != nil {
		return err
	}

	listen := env.Viper.GetString("serve.listen")
	server := stub.NewServer(stub.Config{
		ListenAddr: listen,
		Users:      users,
		Quota:      int(env.Viper.GetUint("serve.quota")),
		ChunkSize:  c.chunkSize,
		ChunkDelay: c.chunkDelay,
		Logger:     env.Logger.With("component", "stub"),
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("development backend error: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
		env.Logger.Info("shutting down development backend", "listen", listen)
		return server.Shutdown()
	}
}

// parseUsers turns name:password pairs into the stub's user table.
func parseUsers(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	users := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, password, ok := strings.Cut(pair, ":")
		if !ok || name == "" || password == "" {
			return nil, errors.New("invalid --user " + pair + ": expected name:password")
		}
		users[name] = password
	}
	return users, nil
}
