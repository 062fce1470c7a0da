// Package conversation persists per-chat message history and the companion
// assigned to each chat. When the primary store is unreachable it degrades
// to a Fallback context keyed by external chat id.
//
// Two layers are exposed:
//   - primitive operations (GetOrCreateChat, SaveMessage, GetHistory, ...)
//     and their *Fallback variants, which do exactly what they say;
//   - degrading helpers (Open, Record, Recall) which probe connectivity,
//     choose a path and fall back again if a primary write fails midway.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
)

// Handle identifies a conversation on either the primary or the fallback
// path. It is serialized into queue jobs.
type Handle struct {
	ChatID         string `json:"chat_id,omitempty"`
	ExternalChatID int64  `json:"external_chat_id"`
	Fallback       bool   `json:"fallback,omitempty"`
}

// String renders the handle for logs.
func (h Handle) String() string {
	if h.Fallback {
		return fmt.Sprintf("memory-%d", h.ExternalChatID)
	}
	return h.ChatID
}

// CompanionLookup resolves companion ids.
type CompanionLookup interface {
	Get(ctx context.Context, id string) (*domain.Companion, error)
}

// Summary describes a stored conversation.
type Summary struct {
	MessageCount  int64      `json:"message_count"`
	FirstMessage  *time.Time `json:"first_message,omitempty"`
	LastMessage   *time.Time `json:"last_message,omitempty"`
	CompanionID   string     `json:"companion_id,omitempty"`
	FallbackStore bool       `json:"fallback,omitempty"`
}

// Store is the conversation store.
type Store struct {
	DB         *gorm.DB
	Fallback   Fallback
	Companions CompanionLookup
}

// New builds a Store.
func New(db *gorm.DB, fb Fallback, companions CompanionLookup) *Store {
	return &Store{DB: db, Fallback: fb, Companions: companions}
}

// ChatTitle is the deterministic title of the chat for an external chat id.
func ChatTitle(externalChatID int64) string {
	return fmt.Sprintf("Chat %d", externalChatID)
}

// CheckConnection is a cheap existence query against the primary store.
func (s *Store) CheckConnection(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("no primary store configured")
	}
	return repo.Ping(s.DB.WithContext(ctx))
}

// GetOrCreateChat returns the primary chat for (externalUserID,
// externalChatID), creating the user and the chat when absent.
func (s *Store) GetOrCreateChat(ctx context.Context, externalChatID, externalUserID int64, username string) (Handle, error) {
	tracer := otel.Tracer("conversation/store")
	ctx, span := tracer.Start(ctx, "GetOrCreateChat", trace.WithAttributes(
		attribute.Int64("chat.external_id", externalChatID),
	))
	defer span.End()

	u, err := repo.EnsureUser(ctx, s.DB, repo.UserProfile{TelegramID: externalUserID, Username: username})
	if err != nil {
		span.RecordError(err)
		return Handle{}, fmt.Errorf("ensure user: %w", err)
	}
	c, err := repo.GetOrCreateChat(ctx, s.DB, u.ID, externalChatID, ChatTitle(externalChatID))
	if err != nil {
		span.RecordError(err)
		return Handle{}, fmt.Errorf("get or create chat: %w", err)
	}
	return Handle{ChatID: c.ID, ExternalChatID: externalChatID}, nil
}

// GetOrCreateChatFallback returns the fallback handle for externalChatID.
func (s *Store) GetOrCreateChatFallback(externalChatID int64) Handle {
	return Handle{ExternalChatID: externalChatID, Fallback: true}
}

// SaveMessage appends a message on the path the handle points to.
func (s *Store) SaveMessage(ctx context.Context, h Handle, role, content string) error {
	if h.Fallback {
		return s.SaveMessageFallback(ctx, h.ExternalChatID, role, content)
	}
	_, err := repo.CreateMessage(ctx, s.DB, h.ChatID, role, content)
	return err
}

// SaveMessageFallback appends a message to the fallback context.
func (s *Store) SaveMessageFallback(ctx context.Context, externalChatID int64, role, content string) error {
	if s.Fallback == nil {
		return errors.New("no fallback context configured")
	}
	return s.Fallback.Append(ctx, externalChatID, Entry{Role: role, Content: content})
}

// GetHistory returns at most limit of the newest messages, oldest first.
func (s *Store) GetHistory(ctx context.Context, h Handle, limit int) ([]Entry, error) {
	if h.Fallback {
		return s.GetHistoryFallback(ctx, h.ExternalChatID, limit)
	}
	msgs, err := repo.RecentMessages(ctx, s.DB, h.ChatID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Entry{Role: m.Role, Content: m.Content, At: m.CreatedAt})
	}
	return out, nil
}

// GetHistoryFallback reads the fallback context.
func (s *Store) GetHistoryFallback(ctx context.Context, externalChatID int64, limit int) ([]Entry, error) {
	if s.Fallback == nil {
		return []Entry{}, nil
	}
	return s.Fallback.Recent(ctx, externalChatID, limit)
}

// ClearConversation deletes every message of the chat but keeps the chat.
// Fallback context for the same external chat is dropped as well.
func (s *Store) ClearConversation(ctx context.Context, h Handle) error {
	if s.Fallback != nil {
		if err := s.Fallback.Reset(ctx, h.ExternalChatID); err != nil {
			log.Warn().Err(err).Int64("chat_id", h.ExternalChatID).Msg("reset fallback context")
		}
	}
	if h.Fallback {
		return nil
	}
	_, err := repo.DeleteMessages(ctx, s.DB, h.ChatID)
	return err
}

// SetChatCompanion assigns a companion to the chat. Fallback handles carry
// no chat row, so this is a no-op for them.
func (s *Store) SetChatCompanion(ctx context.Context, h Handle, companionID string) error {
	if h.Fallback {
		return nil
	}
	return repo.SetChatCompanion(ctx, s.DB, h.ChatID, companionID)
}

// GetChatCompanion returns the companion assigned to the chat, or nil.
func (s *Store) GetChatCompanion(ctx context.Context, h Handle) (*domain.Companion, error) {
	if h.Fallback {
		return nil, nil
	}
	c, err := repo.GetChatByID(ctx, s.DB, h.ChatID)
	if err != nil {
		return nil, err
	}
	if c.CompanionID == nil || *c.CompanionID == "" || s.Companions == nil {
		return nil, nil
	}
	comp, err := s.Companions.Get(ctx, *c.CompanionID)
	if err != nil {
		// An inactive or removed companion reads as unassigned.
		return nil, nil
	}
	return comp, nil
}

// Summary describes the chat's stored history.
func (s *Store) Summary(ctx context.Context, h Handle) (Summary, error) {
	if h.Fallback {
		es, err := s.GetHistoryFallback(ctx, h.ExternalChatID, 1<<16)
		if err != nil {
			return Summary{}, err
		}
		sum := Summary{MessageCount: int64(len(es)), FallbackStore: true}
		if len(es) > 0 {
			sum.FirstMessage, sum.LastMessage = &es[0].At, &es[len(es)-1].At
		}
		return sum, nil
	}
	n, first, last, err := repo.MessageStats(ctx, s.DB, h.ChatID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{MessageCount: n, FirstMessage: first, LastMessage: last}
	if c, err := repo.GetChatByID(ctx, s.DB, h.ChatID); err == nil && c.CompanionID != nil {
		sum.CompanionID = *c.CompanionID
	}
	return sum, nil
}

// Open probes the primary store and returns a primary handle when it is
// reachable, otherwise a fallback handle. It never fails.
func (s *Store) Open(ctx context.Context, externalChatID, externalUserID int64, username string) Handle {
	l := log.With().Int64("chat_id", externalChatID).Logger()
	if err := s.CheckConnection(ctx); err != nil {
		l.Warn().Err(err).Msg("primary store unreachable, using fallback context")
		return s.GetOrCreateChatFallback(externalChatID)
	}
	h, err := s.GetOrCreateChat(ctx, externalChatID, externalUserID, username)
	if err != nil {
		l.Warn().Err(err).Msg("chat creation failed, using fallback context")
		return s.GetOrCreateChatFallback(externalChatID)
	}
	return h
}

// Record saves a message and returns the handle it ended up on. A failed
// primary write is retried on the fallback path; if that fails too the
// message is dropped and the error logged.
func (s *Store) Record(ctx context.Context, h Handle, role, content string) Handle {
	l := log.With().Int64("chat_id", h.ExternalChatID).Str("role", role).Logger()
	err := s.SaveMessage(ctx, h, role, content)
	if err == nil {
		return h
	}
	if h.Fallback {
		l.Error().Err(err).Msg("fallback save failed, message dropped")
		return h
	}
	l.Warn().Err(err).Msg("primary save failed, using fallback context")
	fh := s.GetOrCreateChatFallback(h.ExternalChatID)
	if err := s.SaveMessage(ctx, fh, role, content); err != nil {
		l.Error().Err(err).Msg("fallback save failed, message dropped")
		return h
	}
	return fh
}

// Recall loads history for h. A primary read failure falls back to the
// fallback context, and a fallback failure yields no context.
func (s *Store) Recall(ctx context.Context, h Handle, limit int) []Entry {
	l := log.With().Int64("chat_id", h.ExternalChatID).Logger()
	es, err := s.GetHistory(ctx, h, limit)
	if err == nil {
		return es
	}
	if !h.Fallback {
		l.Warn().Err(err).Msg("history read failed, using fallback context")
		if es, err = s.GetHistoryFallback(ctx, h.ExternalChatID, limit); err == nil {
			return es
		}
	}
	l.Error().Err(err).Msg("history unavailable, continuing without context")
	return []Entry{}
}
