package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/tbourn/go-companion-bot/internal/http"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/resolver"
	"github.com/tbourn/go-companion-bot/internal/services"
)

// purgeEvery is how often expired update claims are deleted.
const purgeEvery = time.Hour

func newServeCmd() *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the Telegram webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not run reply workers in this process (overrides QUEUE_EMBEDDED_WORKER)")
	return cmd
}

func runServe(ctx context.Context, noWorker bool) error {
	a, err := newApp(ctx, "serve")
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.withConversations(); err != nil {
		return err
	}
	if err := a.withTransport(); err != nil {
		return err
	}
	a.withQueue()

	embedded := a.cfg.Queue.EmbeddedWorker && !noWorker
	if a.rdb == nil && !embedded {
		// Jobs in the in-process broker are only visible to this process.
		log.Warn().Msg("no REDIS_URL: running reply workers in-process")
		embedded = true
	}

	cfg := a.cfg
	bot := &services.BotService{
		DB:            a.db,
		Conversations: a.store,
		Resolver:      a.newResolver(),
		Catalog:       a.registry,
		Queue:         a.queue,
		Transport:     a.transport,
		UpdateTTL:     cfg.Telegram.UpdateTTL,
	}
	comp := &services.CompanionService{
		Registry:   a.registry,
		Selections: resolver.DBSelections{DB: a.db},
		Transport:  a.transport,
	}
	auth := &services.AuthService{DB: a.db, BotToken: cfg.Telegram.BotToken, MaxAge: cfg.Telegram.InitDataMaxAge}
	qs := &services.QueueService{Queue: a.queue, DB: a.db}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{Bot: bot, Companions: comp, Auth: auth, Queue: qs}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("api", cfg.APIBasePath).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down HTTP server")
		return srv.Shutdown(sctx)
	})

	if embedded {
		handler, err := a.replyHandler()
		if err != nil {
			return err
		}
		g.Go(func() error { return a.queue.Run(gctx, handler) })
	}

	g.Go(func() error {
		t := time.NewTicker(purgeEvery)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-t.C:
				if n, err := repo.PurgeUpdates(gctx, a.db, now); err != nil {
					log.Warn().Err(err).Msg("purge processed updates")
				} else if n > 0 {
					log.Debug().Int64("purged", n).Msg("expired update claims removed")
				}
			}
		}
	})

	return g.Wait()
}
