// Package handlers exposes the bot's HTTP endpoints:
//   - POST /bot/webhook                (Telegram updates)
//   - POST /bot/send-message           (welcome from a companion + selection)
//   - GET  /bot/queue                  (reply queue status, admin)
//   - GET  /companions                 (catalog, optional ?tier=, ETag support)
//   - POST /companions/seed            (seed the built-in catalog, admin)
//   - PATCH /companions/{id}           (edit a companion, admin)
//   - POST /auth/telegram-login        (mini-app login)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/services"
)

//
// Service contracts (context-aware)
//

// BotService consumes Telegram updates.
type BotService interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update) error
}

// CompanionService serves the catalog and companion selection.
type CompanionService interface {
	List(ctx context.Context, tier string) ([]domain.Companion, error)
	Version(ctx context.Context) (string, error)
	Seed(ctx context.Context) (int, error)
	Update(ctx context.Context, id string, p repo.CompanionPatch) error
	SendWelcome(ctx context.Context, telegramUserID int64, companionName string) (*domain.Companion, error)
}

// AuthService verifies mini-app logins.
type AuthService interface {
	Login(ctx context.Context, initData string) (*domain.User, error)
}

// QueueService reports reply queue health.
type QueueService interface {
	Status(ctx context.Context, failedLimit int) (services.QueueStatus, error)
}

// Header names checked by the handlers.
const (
	HeaderWebhookSecret = "X-Telegram-Bot-Api-Secret-Token"
	HeaderAdminToken    = "X-Admin-Token"
)

// Options carries shared secrets. Empty values disable the related check
// (webhook) or the related endpoints (admin).
type Options struct {
	WebhookSecret string
	AdminToken    string
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints.
type Handlers struct {
	botSvc   BotService
	compSvc  CompanionService
	authSvc  AuthService
	queueSvc QueueService
	opts     Options
}

// New constructs and returns a Handlers instance bound to the given services.
func New(bot BotService, comp CompanionService, auth AuthService, q QueueService, opts Options) *Handlers {
	return &Handlers{botSvc: bot, compSvc: comp, authSvc: auth, queueSvc: q, opts: opts}
}

// secretEqual compares in constant time.
func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireAdmin aborts unless the request carries the admin token. Without a
// configured token the admin endpoints are reported as missing.
func (h *Handlers) requireAdmin(c *gin.Context) bool {
	if h.opts.AdminToken == "" {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return false
	}
	if !secretEqual(c.GetHeader(HeaderAdminToken), h.opts.AdminToken) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "admin token required")
		return false
	}
	return true
}
