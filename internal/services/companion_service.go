// Package services – CompanionService
//
// CompanionService backs the mini-app API: catalog listing with tier
// filtering, seeding, and "send a welcome from companion X", which also
// records X as the user's sticky selection.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-companion-bot/internal/companions"
	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/resolver"
	"github.com/tbourn/go-companion-bot/internal/telegram"
)

// Registry is the companion catalog as used by CompanionService.
type Registry interface {
	List(ctx context.Context) ([]domain.Companion, error)
	FindByName(ctx context.Context, name string) (*domain.Companion, error)
	Seed(ctx context.Context) (int, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
	Update(ctx context.Context, id string, p repo.CompanionPatch) error
}

// CompanionService serves companion listing and selection.
type CompanionService struct {
	Registry   Registry
	Selections resolver.Selections
	Transport  telegram.Transport
	Now        func() time.Time
}

// List returns active companions in seed order. A non-empty tier keeps only
// companions a subscriber on that tier may use; unknown tiers are rejected.
func (s *CompanionService) List(ctx context.Context, tier string) ([]domain.Companion, error) {
	tr := otel.Tracer("services/CompanionService")
	ctx, span := tr.Start(ctx, "List", trace.WithAttributes(attribute.String("tier", tier)))
	defer span.End()

	tier = strings.ToUpper(strings.TrimSpace(tier))
	if tier != "" && !companions.ValidTier(tier) {
		return nil, ErrInvalidInput
	}
	cs, err := s.Registry.List(ctx)
	if err != nil {
		return nil, err
	}
	if tier != "" {
		cs = companions.FilterByTier(cs, tier)
	}
	return cs, nil
}

// Version returns a cache validator for the catalog.
func (s *CompanionService) Version(ctx context.Context) (string, error) {
	n, ts, err := s.Registry.Stats(ctx)
	if err != nil {
		return "", err
	}
	var unix int64
	if ts != nil {
		unix = ts.Unix()
	}
	return fmt.Sprintf("%d:%d", n, unix), nil
}

// Seed inserts the built-in catalog if none exists.
func (s *CompanionService) Seed(ctx context.Context) (int, error) {
	return s.Registry.Seed(ctx)
}

// Update applies an administrative patch. Tier names are upper-cased.
func (s *CompanionService) Update(ctx context.Context, id string, p repo.CompanionPatch) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidInput
	}
	if p.SubscriptionTier != nil {
		t := strings.ToUpper(strings.TrimSpace(*p.SubscriptionTier))
		p.SubscriptionTier = &t
	}
	err := s.Registry.Update(ctx, id, p)
	switch {
	case errors.Is(err, companions.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, companions.ErrInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return err
}

// SendWelcome sends the welcome of the named companion to telegramUserID
// and records it as that user's selection. A failed selection write is
// logged only; the welcome has already gone out.
func (s *CompanionService) SendWelcome(ctx context.Context, telegramUserID int64, companionName string) (*domain.Companion, error) {
	tr := otel.Tracer("services/CompanionService")
	ctx, span := tr.Start(ctx, "SendWelcome",
		trace.WithAttributes(
			attribute.Int64("telegram.user_id", telegramUserID),
			attribute.String("companion.name", companionName),
		),
	)
	defer span.End()

	if telegramUserID == 0 || strings.TrimSpace(companionName) == "" {
		return nil, ErrInvalidInput
	}
	c, err := s.Registry.FindByName(ctx, companionName)
	if err != nil {
		if errors.Is(err, companions.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.Transport.SendMessage(ctx, telegramUserID, WelcomeText(*c))

	if s.Selections != nil {
		sel := domain.CompanionSelection{TelegramUserID: telegramUserID, CompanionID: c.ID, SelectedAt: s.now()}
		if err := s.Selections.Put(ctx, sel); err != nil {
			span.RecordError(err)
			log.Error().Err(err).Int64("user_id", telegramUserID).Str("companion", c.ID).Msg("record companion selection")
		}
	}
	return c, nil
}

func (s *CompanionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
