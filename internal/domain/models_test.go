package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&User{}, &UserSettings{}, &Companion{}, &Chat{}, &Message{},
		&CompanionSelection{}, &ProcessedUpdate{}, &FailedJob{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():               "users",
		UserSettings{}.TableName():       "user_settings",
		Companion{}.TableName():          "ai_companions",
		Chat{}.TableName():               "chats",
		Message{}.TableName():            "messages",
		CompanionSelection{}.TableName(): "companion_selections",
		ProcessedUpdate{}.TableName():    "processed_updates",
		FailedJob{}.TableName():          "failed_jobs",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	for model, idx := range map[any]string{
		&User{}:      "ux_users_telegram",
		&Companion{}: "ux_companions_name",
		&Chat{}:      "ux_chats_user_title",
		&Message{}:   "idx_chat_msgs",
	} {
		if !m.HasIndex(model, idx) {
			t.Fatalf("expected index %s on %T", idx, model)
		}
	}
}

func TestConstraints_RoleAndEnergyCost(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	bad := &Companion{ID: "x", Name: "X", Avatar: "x", Description: "d", Personality: "p", EnergyCost: 0, SubscriptionTier: TierFree, IsActive: true}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected energy_cost > 0 check to reject 0")
	}

	u := &User{ID: "u1", TelegramID: 1, SubscriptionTier: TierFree, CreatedAt: now, UpdatedAt: now}
	if err := db.Omit("Settings").Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	ch := &Chat{ID: "c1", UserID: "u1", Title: "Chat 1", ExternalChatID: 1, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := db.Omit("User").Create(ch).Error; err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	if err := db.Omit("Chat").Create(&Message{ID: "m0", ChatID: "c1", Role: "bot", Content: "x", CreatedAt: now}).Error; err == nil {
		t.Fatalf("expected role check to reject %q", "bot")
	}
	for i, role := range []string{RoleUser, RoleAssistant, RoleSystem} {
		m := &Message{ID: fmt.Sprintf("m%d", i+1), ChatID: "c1", Role: role, Content: "x", CreatedAt: now}
		if err := db.Omit("Chat").Create(m).Error; err != nil {
			t.Fatalf("insert %s message: %v", role, err)
		}
	}
}

func TestCascades_UserChatMessages(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	u := &User{ID: "u1", TelegramID: 1, SubscriptionTier: TierFree, CreatedAt: now, UpdatedAt: now}
	if err := db.Omit("Settings").Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := db.Create(&UserSettings{UserID: "u1", Tone: "friendly", Language: "en", UpdatedAt: now}).Error; err != nil {
		t.Fatalf("insert settings: %v", err)
	}
	if err := db.Omit("User").Create(&Chat{ID: "c1", UserID: "u1", Title: "Chat 1", ExternalChatID: 1, IsActive: true, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	if err := db.Omit("Chat").Create(&Message{ID: "m1", ChatID: "c1", Role: RoleUser, Content: "hi", CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}

	// Hard delete of the chat removes its messages.
	if err := db.Unscoped().Delete(&Chat{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	var cnt int64
	if err := db.Model(&Message{}).Where("chat_id = ?", "c1").Count(&cnt).Error; err != nil || cnt != 0 {
		t.Fatalf("messages after chat delete = %d (err=%v), want 0", cnt, err)
	}

	// Hard delete of the user removes its settings.
	if err := db.Unscoped().Delete(&User{}, "id = ?", "u1").Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := db.Model(&UserSettings{}).Where("user_id = ?", "u1").Count(&cnt).Error; err != nil || cnt != 0 {
		t.Fatalf("settings after user delete = %d (err=%v), want 0", cnt, err)
	}
}
