package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/services"
)

// TelegramLoginRequest carries the raw mini-app init data.
type TelegramLoginRequest struct {
	InitData string `json:"initData"`
}

// TelegramLoginResponse returns the stored user with settings.
type TelegramLoginResponse struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user"`
}

// TelegramLogin verifies mini-app init data and upserts the user.
//
// 400 when initData is missing, 401 when it fails verification, 500 when
// the bot token is not configured or storage fails.
func (h *Handlers) TelegramLogin(c *gin.Context) {
	var req TelegramLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.InitData) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no initData provided")
		return
	}

	u, err := h.authSvc.Login(c.Request.Context(), req.InitData)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no initData provided")
		case errors.Is(err, services.ErrUnauthorized):
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid initData")
		case errors.Is(err, services.ErrNotConfigured):
			fail(c, http.StatusInternalServerError, ErrCodeNotConfigured, "bot token not configured")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeLoginFailed, "internal server error")
		}
		return
	}
	ok(c, http.StatusOK, TelegramLoginResponse{Success: true, User: u})
}
