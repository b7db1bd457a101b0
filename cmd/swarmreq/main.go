// Command swarmreq is a cobra front-end over pkg/engine: it reads a path
// list and a target host from flags and drives the fan-out request engine
// to completion, printing drained records as it reaps workers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/swarmreq/swarmreq/cmd/swarmreq/commands"
	"github.com/swarmreq/swarmreq/pkg/swarmlog"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := logrus.InfoLevel
	if os.Getenv("SWARMREQ_DEBUG") != "" {
		level = logrus.DebugLevel
	}
	log := swarmlog.New(os.Stderr, level)

	rootCmd := commands.NewRootCmd(log)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("swarmreq: command failed")
		os.Exit(1)
	}
}
