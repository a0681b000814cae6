package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	chatchaincmder "github.com/papercomputeco/chatchain/cmd/chatchain"
	"github.com/papercomputeco/chatchain/pkg/cliui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := chatchaincmder.NewChatchainCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		cliui.Fail(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
