package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-companion-bot/internal/companions"
	"github.com/tbourn/go-companion-bot/internal/conversation"
	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/queue"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/resolver"
)

// ---- shared fixtures ----

var (
	zen   = domain.Companion{ID: "zen", Name: "Zen", Avatar: "🧘", Description: "Calm <guide>", Personality: "Serene", EnergyCost: 3, SubscriptionTier: domain.TierFree, IsActive: true}
	coach = domain.Companion{ID: "max", Name: "Max", Avatar: "💪", Description: "Coach", Personality: "Energetic", EnergyCost: 7, SubscriptionTier: domain.TierPremium, IsActive: true}
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.Open(repo.DriverSQLite, filepath.Join(t.TempDir(), "services.db"), "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ---- transport ----

type sent struct {
	ChatID int64
	Text   string
}

type fakeTransport struct {
	mu       sync.Mutex
	messages []sent
	actions  []sent
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sent{chatID, text})
}

func (f *fakeTransport) SendChatAction(_ context.Context, chatID int64, action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, sent{chatID, action})
}

func (f *fakeTransport) sentMessages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.messages...)
}

// ---- conversation store ----

type recorded struct {
	Handle  conversation.Handle
	Role    string
	Content string
}

type fakeStore struct {
	mu         sync.Mutex
	records    []recorded
	history    []conversation.Entry
	recallArgs []int
	summary    conversation.Summary
	clearErr   error
	cleared    int
}

func (f *fakeStore) Open(_ context.Context, chatID, _ int64, _ string) conversation.Handle {
	return conversation.Handle{ChatID: "chat-1", ExternalChatID: chatID}
}

func (f *fakeStore) Record(_ context.Context, h conversation.Handle, role, content string) conversation.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recorded{h, role, content})
	return h
}

func (f *fakeStore) Recall(_ context.Context, _ conversation.Handle, limit int) []conversation.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recallArgs = append(f.recallArgs, limit)
	return f.history
}

func (f *fakeStore) ClearConversation(context.Context, conversation.Handle) error {
	f.cleared++
	return f.clearErr
}

func (f *fakeStore) Summary(context.Context, conversation.Handle) (conversation.Summary, error) {
	return f.summary, nil
}

// ---- resolver and catalog ----

type fakeResolver struct {
	res   resolver.Resolution
	texts []string
}

func (f *fakeResolver) Resolve(_ context.Context, text string, _ resolver.User, _ conversation.Handle) resolver.Resolution {
	f.texts = append(f.texts, text)
	return f.res
}

type fakeCatalog struct {
	list    []domain.Companion
	listErr error
	def     domain.Companion
}

func (f *fakeCatalog) List(context.Context) ([]domain.Companion, error) { return f.list, f.listErr }
func (f *fakeCatalog) Default(context.Context) domain.Companion { return f.def }

// ---- queue ----

type fakeEnqueuer struct {
	jobs []*queue.Job
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job *queue.Job) error {
	if f.err != nil {
		return f.err
	}
	job.ID = "job-1"
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeQueueStats struct {
	name  string
	stats queue.Stats
	err   error
}

func (f fakeQueueStats) Name() string { return f.name }
func (f fakeQueueStats) Stats(context.Context) (queue.Stats, error) { return f.stats, f.err }

// ---- companion registry ----

type fakeRegistry struct {
	list      []domain.Companion
	listErr   error
	seeded    int
	count     int64
	latest    *time.Time
	updateErr error
	updated   []repo.CompanionPatch
}

func (f *fakeRegistry) List(context.Context) ([]domain.Companion, error) { return f.list, f.listErr }

func (f *fakeRegistry) FindByName(_ context.Context, name string) (*domain.Companion, error) {
	for i := range f.list {
		if f.list[i].Name == name || f.list[i].ID == name {
			c := f.list[i]
			return &c, nil
		}
	}
	return nil, errNotFoundInRegistry
}

func (f *fakeRegistry) Seed(context.Context) (int, error) { return f.seeded, nil }

func (f *fakeRegistry) Stats(context.Context) (int64, *time.Time, error) {
	return f.count, f.latest, nil
}

func (f *fakeRegistry) Update(_ context.Context, _ string, p repo.CompanionPatch) error {
	f.updated = append(f.updated, p)
	return f.updateErr
}

var errNotFoundInRegistry = fmt.Errorf("lookup: %w", companions.ErrNotFound)

type fakeSelections struct {
	put []domain.CompanionSelection
	err error
}

func (f *fakeSelections) Get(context.Context, int64) (*domain.CompanionSelection, error) {
	return nil, errors.New("unused")
}

func (f *fakeSelections) Put(_ context.Context, sel domain.CompanionSelection) error {
	f.put = append(f.put, sel)
	return f.err
}
