// Package resolver decides which companion answers an inbound message.
//
// Resolution order, first match wins:
//  1. a leading "/" marks a command; no companion is resolved;
//  2. the first catalog entry (seed order) whose name or id occurs anywhere
//     in the text, ignoring case;
//  3. the user's last explicit selection if it is younger than Window;
//  4. the default persona.
//
// Mention and sticky resolutions also assign the companion to the chat.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/conversation"
	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
)

// DefaultWindow is how long an explicit selection stays sticky.
const DefaultWindow = 5 * time.Minute

// Source tells how a resolution was reached.
type Source string

const (
	SourceCommand Source = "command"
	SourceMention Source = "mention"
	SourceSticky  Source = "sticky"
	SourceDefault Source = "default"
)

// User is the sender of an inbound message.
type User struct {
	ID       int64
	Username string
}

// Resolution is the outcome of Resolve. Companion is nil for commands.
type Resolution struct {
	Companion *domain.Companion
	Command   string
	Args      string
	Source    Source
}

// Catalog is the companion registry as seen by the resolver.
type Catalog interface {
	List(ctx context.Context) ([]domain.Companion, error)
	Get(ctx context.Context, id string) (*domain.Companion, error)
	Default(ctx context.Context) domain.Companion
}

// Selections stores the last explicit companion choice per user.
type Selections interface {
	Get(ctx context.Context, telegramUserID int64) (*domain.CompanionSelection, error)
	Put(ctx context.Context, sel domain.CompanionSelection) error
}

// ChatAssigner records which companion a chat is talking to.
type ChatAssigner interface {
	SetChatCompanion(ctx context.Context, h conversation.Handle, companionID string) error
}

// Resolver implements the resolution order described in the package doc.
type Resolver struct {
	Catalog    Catalog
	Selections Selections
	Chats      ChatAssigner
	Window     time.Duration
	Now        func() time.Time
}

// New builds a Resolver with the default sticky window and wall clock.
func New(cat Catalog, sel Selections, chats ChatAssigner) *Resolver {
	return &Resolver{Catalog: cat, Selections: sel, Chats: chats, Window: DefaultWindow, Now: time.Now}
}

// Resolve picks the companion for text sent by user in chat. Storage errors
// are logged and resolution continues with the next rule.
func (r *Resolver) Resolve(ctx context.Context, text string, user User, chat conversation.Handle) Resolution {
	if name, args, ok := ParseCommand(text); ok {
		return Resolution{Command: name, Args: args, Source: SourceCommand}
	}

	tracer := otel.Tracer("resolver")
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()

	l := log.With().Int64("user_id", user.ID).Int64("chat_id", chat.ExternalChatID).Logger()
	now := r.now()

	cs, err := r.Catalog.List(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("companion catalog unavailable")
	}
	if c := MatchMention(cs, text); c != nil {
		r.assign(ctx, chat, c.ID)
		if r.Selections != nil {
			sel := domain.CompanionSelection{TelegramUserID: user.ID, CompanionID: c.ID, SelectedAt: now}
			if err := r.Selections.Put(ctx, sel); err != nil {
				l.Warn().Err(err).Msg("record companion selection")
			}
		}
		span.SetAttributes(attribute.String("resolver.source", string(SourceMention)), attribute.String("companion.id", c.ID))
		return Resolution{Companion: c, Source: SourceMention}
	}

	if c := r.sticky(ctx, user.ID, now); c != nil {
		r.assign(ctx, chat, c.ID)
		span.SetAttributes(attribute.String("resolver.source", string(SourceSticky)), attribute.String("companion.id", c.ID))
		return Resolution{Companion: c, Source: SourceSticky}
	}

	def := r.Catalog.Default(ctx)
	span.SetAttributes(attribute.String("resolver.source", string(SourceDefault)), attribute.String("companion.id", def.ID))
	return Resolution{Companion: &def, Source: SourceDefault}
}

func (r *Resolver) sticky(ctx context.Context, userID int64, now time.Time) *domain.Companion {
	if r.Selections == nil {
		return nil
	}
	sel, err := r.Selections.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Int64("user_id", userID).Msg("load companion selection")
		}
		return nil
	}
	if sel == nil || now.Sub(sel.SelectedAt) > r.window() {
		return nil
	}
	c, err := r.Catalog.Get(ctx, sel.CompanionID)
	if err != nil {
		return nil
	}
	return c
}

func (r *Resolver) assign(ctx context.Context, chat conversation.Handle, companionID string) {
	if r.Chats == nil || (chat.ChatID == "" && !chat.Fallback) {
		return
	}
	if err := r.Chats.SetChatCompanion(ctx, chat, companionID); err != nil {
		log.Warn().Err(err).Str("chat", chat.String()).Str("companion", companionID).Msg("assign chat companion")
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return DefaultWindow
}

// MatchMention returns the first companion, in slice order, whose name or
// id occurs in text under Unicode case folding. Overlapping names are not
// ranked: the earlier entry wins.
func MatchMention(cs []domain.Companion, text string) *domain.Companion {
	if text == "" {
		return nil
	}
	fold := cases.Fold()
	hay := fold.String(text)
	for i := range cs {
		if n := fold.String(cs[i].Name); n != "" && strings.Contains(hay, n) {
			return &cs[i]
		}
		if id := fold.String(cs[i].ID); id != "" && strings.Contains(hay, id) {
			return &cs[i]
		}
	}
	return nil
}

// ParseCommand splits "/name@bot args" into a lower-cased name and the
// remaining text. ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// DBSelections stores selections in the companion_selections table.
type DBSelections struct {
	DB *gorm.DB
}

// Get returns the user's selection or repo.ErrNotFound.
func (s DBSelections) Get(ctx context.Context, telegramUserID int64) (*domain.CompanionSelection, error) {
	return repo.GetSelection(ctx, s.DB, telegramUserID)
}

// Put upserts the user's selection.
func (s DBSelections) Put(ctx context.Context, sel domain.CompanionSelection) error {
	return repo.UpsertSelection(ctx, s.DB, sel)
}
