package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/companions"
	"github.com/tbourn/go-companion-bot/internal/completion"
	"github.com/tbourn/go-companion-bot/internal/config"
	"github.com/tbourn/go-companion-bot/internal/conversation"
	"github.com/tbourn/go-companion-bot/internal/observability"
	"github.com/tbourn/go-companion-bot/internal/queue"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/resolver"
	"github.com/tbourn/go-companion-bot/internal/services"
	"github.com/tbourn/go-companion-bot/internal/sysutil"
	"github.com/tbourn/go-companion-bot/internal/telegram"
)

// app holds the process-wide dependencies shared by the subcommands.
type app struct {
	cfg       config.Config
	db        *gorm.DB
	rdb       *redis.Client
	registry  *companions.Registry
	store     *conversation.Store
	transport telegram.Transport
	queue     *queue.Queue
	broker    queue.Broker
	shutdown  observability.ShutdownFunc
}

// newApp loads configuration and sets up logging, tracing and the database.
// Components that only some subcommands need are built by the with* helpers.
func newApp(ctx context.Context, role string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, role, nil)

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version, role)
	if err != nil {
		log.Warn().Err(err).Msg("OpenTelemetry disabled")
		shutdown = nil
	}

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		registry: companions.NewRegistry(db, cfg.CompanionCacheTTL),
		shutdown: shutdown,
	}

	if cfg.Queue.RedisURL != "" {
		rdb, err := queue.OpenRedis(ctx, cfg.Queue.RedisURL)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
	}
	return a, nil
}

// withConversations builds the conversation store and its fallback context.
func (a *app) withConversations() error {
	var fb conversation.Fallback
	switch a.cfg.Conversation.FallbackBackend {
	case "redis":
		if a.rdb == nil {
			return errors.New("FALLBACK_BACKEND=redis requires REDIS_URL")
		}
		fb = conversation.NewRedisContext(a.rdb, "companionbot",
			a.cfg.Conversation.FallbackCapacity, a.cfg.Conversation.FallbackIdleTTL)
	default:
		fb = conversation.NewMemoryContext(a.cfg.Conversation.FallbackCapacity, a.cfg.Conversation.FallbackIdleTTL)
	}
	a.store = conversation.New(a.db, fb, a.registry)
	return nil
}

// withTransport connects to the Bot API, or logs outbound messages when no
// bot token is configured.
func (a *app) withTransport() error {
	if a.cfg.Telegram.BotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_KEY not set; outbound messages are only logged")
		a.transport = telegram.LogTransport{}
		return nil
	}
	t, err := telegram.NewBotTransport(a.cfg.Telegram.BotToken, a.cfg.Telegram.APIEndpoint,
		&http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return err
	}
	a.transport = t
	return nil
}

// withQueue builds the reply queue over Redis when configured, in memory
// otherwise.
func (a *app) withQueue() {
	qc := a.cfg.Queue
	if a.rdb != nil {
		a.broker = queue.NewRedisBroker(a.rdb, qc.Name)
	} else {
		a.broker = queue.NewMemoryBroker()
	}
	a.queue = queue.New(a.broker, queue.Options{
		Name:        qc.Name,
		Concurrency: qc.Concurrency,
		MaxAttempts: qc.MaxAttempts,
		Backoff:     qc.Backoff,
		FailedKeep:  qc.FailedKeep,
		Recorder:    queue.DBRecorder{DB: a.db, Keep: qc.FailedKeep},
	})
}

// replyHandler builds the queue handler that produces companion replies.
func (a *app) replyHandler() (queue.Handler, error) {
	client, err := completion.New(a.cfg.Completion)
	if err != nil {
		return nil, err
	}
	rs := &services.ReplyService{
		Conversations: a.store,
		Completion:    client,
		Transport:     a.transport,
		HistoryLimit:  a.cfg.Conversation.HistoryLimit,
	}
	return rs.Handle, nil
}

func (a *app) newResolver() *resolver.Resolver {
	r := resolver.New(a.registry, resolver.DBSelections{DB: a.db}, a.store)
	r.Window = a.cfg.Conversation.StickyWindow
	return r
}

// close releases everything newApp and the with* helpers opened.
func (a *app) close() {
	if a.broker != nil {
		_ = a.broker.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := observability.ShutdownWithin(a.shutdown, 5*time.Second); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown")
	}
}
