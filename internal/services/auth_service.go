// Package services – AuthService
//
// AuthService logs a mini-app user in: it verifies the signed init payload
// against the bot token and upserts the user with default settings.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/telegram"
)

// AuthService verifies Telegram mini-app logins.
type AuthService struct {
	DB       *gorm.DB
	BotToken string
	// MaxAge bounds auth_date; zero accepts any age.
	MaxAge time.Duration
}

// Login verifies initData and returns the stored user.
//
// Errors: ErrInvalidInput when initData is empty, ErrUnauthorized when the
// signature or expiry check fails, ErrNotConfigured without a bot token.
func (s *AuthService) Login(ctx context.Context, initData string) (*domain.User, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	if s.BotToken == "" {
		return nil, ErrNotConfigured
	}
	mu, err := telegram.VerifyInitData(initData, s.BotToken, s.MaxAge)
	switch {
	case errors.Is(err, telegram.ErrInitDataMissing):
		return nil, ErrInvalidInput
	case err != nil:
		span.RecordError(err)
		log.Info().Err(err).Msg("rejected mini-app init data")
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	span.SetAttributes(attribute.Int64("telegram.user_id", mu.ID))

	u, err := repo.UpsertUser(ctx, s.DB, repo.UserProfile{
		TelegramID: mu.ID,
		Username:   mu.Username,
		FirstName:  mu.FirstName,
		LastName:   mu.LastName,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}
