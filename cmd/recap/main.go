package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aleix-cd/recap-ae-challenge/cmd/recap/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
