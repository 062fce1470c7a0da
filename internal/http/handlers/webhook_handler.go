// Webhook and bot HTTP handlers.
//
// The webhook acknowledges every well-formed update with 200 {"ok":true},
// whatever happens downstream, so Telegram does not re-deliver it. Only a
// body that is not an update yields 500; panics are turned into 500 by the
// recovery middleware.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-companion-bot/internal/http/middleware"
	"github.com/tbourn/go-companion-bot/internal/utils"
)

// updateTimeout bounds the synchronous part of update handling.
const updateTimeout = 20 * time.Second

//
// DTOs
//

// WebhookResponse acknowledges an update.
type WebhookResponse struct {
	OK bool `json:"ok"`
}

// SendMessageRequest asks a companion to greet a user.
type SendMessageRequest struct {
	TelegramUserID int64  `json:"telegramUserId"`
	CompanionName  string `json:"companionName"`
	// Message is accepted for compatibility with the mini app and ignored.
	Message string `json:"message,omitempty"`
}

// SendMessageResponse confirms a welcome was sent.
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Companion string `json:"companion"`
}

//
// Handlers
//

// Webhook receives Telegram updates.
func (h *Handlers) Webhook(c *gin.Context) {
	if h.opts.WebhookSecret != "" && !secretEqual(c.GetHeader(HeaderWebhookSecret), h.opts.WebhookSecret) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook secret")
		return
	}

	var u tgbotapi.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInvalidUpdate, "could not parse update")
		return
	}

	// Telegram may drop the connection once it has sent the update; the
	// pipeline keeps going with its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), updateTimeout)
	defer cancel()

	if err := h.botSvc.HandleUpdate(ctx, u); err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Int("update_id", u.UpdateID).Msg("update handled with errors")
	}
	ok(c, http.StatusOK, WebhookResponse{OK: true})
}

// SendMessage sends the welcome of a companion to a user and records the
// selection.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	req.CompanionName = strings.TrimSpace(req.CompanionName)
	if req.TelegramUserID == 0 || req.CompanionName == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "telegramUserId and companionName are required")
		return
	}

	comp, err := h.compSvc.SendWelcome(c.Request.Context(), req.TelegramUserID, req.CompanionName)
	if err != nil {
		failService(c, err, ErrCodeSendFailed, "companion not found")
		return
	}
	ok(c, http.StatusOK, SendMessageResponse{
		Success:   true,
		Message:   "Message sent successfully",
		Companion: comp.Name,
	})
}

// QueueStatus reports reply queue counts and recent failures (admin).
// ?failed=N bounds the failure list (default 10, max 50).
func (h *Handlers) QueueStatus(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	const (
		defaultFailed = 10
		maxFailed     = 50
	)
	n := utils.QueryLimit(c.Query("failed"), defaultFailed, maxFailed)
	st, err := h.queueSvc.Status(c.Request.Context(), n)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}
