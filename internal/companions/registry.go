package companions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
)

var (
	// ErrNotFound is returned when no companion matches an id or name.
	ErrNotFound = errors.New("companion not found")
	// ErrInvalid is returned when a patch carries a value outside the allowed set.
	ErrInvalid = errors.New("invalid companion")
)

const activeKey = "companions:active"

// Registry serves the companion catalog from the database with a short-lived
// in-process cache. When the database cannot be read or holds no companions
// at all, the built-in catalog is served instead so the bot keeps answering.
type Registry struct {
	DB *gorm.DB

	cache *cache.Cache
}

// NewRegistry builds a Registry. A ttl of zero disables caching.
func NewRegistry(db *gorm.DB, ttl time.Duration) *Registry {
	r := &Registry{DB: db}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// List returns the active companions in seed order.
func (r *Registry) List(ctx context.Context) ([]domain.Companion, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(activeKey); ok {
			return clone(v.([]domain.Companion)), nil
		}
	}

	tracer := otel.Tracer("companions/registry")
	ctx, span := tracer.Start(ctx, "List")
	defer span.End()

	cs, err := repo.ListCompanions(ctx, r.DB, true)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("companion catalog unavailable, serving built-in defaults")
		return Defaults(), nil
	}
	if len(cs) == 0 {
		// An unseeded table falls back to the built-ins. A seeded catalog
		// with every companion deactivated stays empty.
		n, cerr := repo.CountCompanions(ctx, r.DB)
		if cerr != nil || n == 0 {
			return Defaults(), nil
		}
		cs = []domain.Companion{}
	}
	if r.cache != nil {
		r.cache.Set(activeKey, clone(cs), cache.DefaultExpiration)
	}
	span.SetAttributes(attribute.Int("companions.count", len(cs)))
	return cs, nil
}

// ListForTier returns the active companions a subscriber on tier may use.
func (r *Registry) ListForTier(ctx context.Context, tier string) ([]domain.Companion, error) {
	cs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByTier(cs, tier), nil
}

// Get returns the active companion with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Companion, error) {
	cs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cs {
		if cs[i].ID == id {
			return &cs[i], nil
		}
	}
	return nil, ErrNotFound
}

// FindByName returns the active companion whose name or id equals name,
// ignoring case.
func (r *Registry) FindByName(ctx context.Context, name string) (*domain.Companion, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}
	cs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cs {
		if strings.EqualFold(cs[i].Name, name) || strings.EqualFold(cs[i].ID, name) {
			return &cs[i], nil
		}
	}
	return nil, ErrNotFound
}

// Default returns the default persona from the catalog, or the built-in one
// when the catalog lacks it.
func (r *Registry) Default(ctx context.Context) domain.Companion {
	if c, err := r.Get(ctx, DefaultID); err == nil {
		return *c
	}
	return Default()
}

// Seed inserts the built-in catalog when the table is empty. It returns the
// number of companions created; zero means the catalog was already seeded.
func (r *Registry) Seed(ctx context.Context) (int, error) {
	tracer := otel.Tracer("companions/registry")
	ctx, span := tracer.Start(ctx, "Seed")
	defer span.End()

	n, err := repo.CountCompanions(ctx, r.DB)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("count companions: %w", err)
	}
	if n > 0 {
		log.Info().Int64("existing", n).Msg("companions already seeded, skipping")
		return 0, nil
	}
	defs := Defaults()
	if err := repo.CreateCompanions(ctx, r.DB, defs); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("seed companions: %w", err)
	}
	r.invalidate()
	span.SetAttributes(attribute.Int("companions.seeded", len(defs)))
	log.Info().Int("count", len(defs)).Msg("seeded default companions")
	return len(defs), nil
}

// Update applies an administrative patch to one companion.
func (r *Registry) Update(ctx context.Context, id string, p repo.CompanionPatch) error {
	tracer := otel.Tracer("companions/registry")
	ctx, span := tracer.Start(ctx, "Update", trace.WithAttributes(attribute.String("companion.id", id)))
	defer span.End()

	if p.EnergyCost != nil && *p.EnergyCost <= 0 {
		return fmt.Errorf("%w: energy cost must be positive", ErrInvalid)
	}
	if p.SubscriptionTier != nil && !ValidTier(*p.SubscriptionTier) {
		return fmt.Errorf("%w: unknown subscription tier %q", ErrInvalid, *p.SubscriptionTier)
	}
	if err := repo.UpdateCompanion(ctx, r.DB, id, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		span.RecordError(err)
		return err
	}
	r.invalidate()
	return nil
}

// Stats exposes catalog size and last modification time for ETags.
func (r *Registry) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.CompanionsStats(ctx, r.DB)
}

func (r *Registry) invalidate() {
	if r.cache != nil {
		r.cache.Flush()
	}
}

func clone(cs []domain.Companion) []domain.Companion {
	out := make([]domain.Companion, len(cs))
	copy(out, cs)
	return out
}
