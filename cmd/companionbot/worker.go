package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume reply jobs from the Redis queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx)
		},
	}
}

func runWorker(ctx context.Context) error {
	a, err := newApp(ctx, "worker")
	if err != nil {
		return err
	}
	defer a.close()

	if a.rdb == nil {
		return errors.New("worker requires REDIS_URL; use serve with the embedded worker instead")
	}
	if err := a.withConversations(); err != nil {
		return err
	}
	if err := a.withTransport(); err != nil {
		return err
	}
	a.withQueue()

	handler, err := a.replyHandler()
	if err != nil {
		return err
	}
	log.Info().Str("queue", a.queue.Name()).Int("concurrency", a.cfg.Queue.Concurrency).Msg("worker started")
	if err := a.queue.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("worker stopped")
	return nil
}
