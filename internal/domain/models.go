// Package domain defines the persistence models for users, companions, chats
// and messages. These types are mapped with GORM and form the core data layer
// of the companion bot.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles as stored in the messages table.
const (
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
	RoleSystem    = "SYSTEM"
)

// Subscription tiers. A companion's tier is the minimum subscription a user
// needs to access it.
const (
	TierFree     = "FREE"
	TierBasic    = "BASIC"
	TierPremium  = "PREMIUM"
	TierUltimate = "ULTIMATE"
)

// User is a Telegram account known to the bot. Rows are created lazily on the
// first inbound message or on mini-app login.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - TelegramID: external Telegram user id; unique.
//   - Username: last seen Telegram username (may be empty).
//   - SubscriptionTier: one of the Tier* constants, FREE by default.
//   - Settings: per-user preferences, created alongside the user.
type User struct {
	ID                  string         `json:"id"                    gorm:"type:char(36);primaryKey"`
	TelegramID          int64          `json:"telegram_id"           gorm:"not null;uniqueIndex:ux_users_telegram"`
	Username            string         `json:"username"              gorm:"type:varchar(64)"`
	FirstName           string         `json:"first_name,omitempty"  gorm:"type:varchar(128)"`
	LastName            string         `json:"last_name,omitempty"   gorm:"type:varchar(128)"`
	SubscriptionTier    string         `json:"subscription_tier"     gorm:"type:varchar(16);not null;default:'FREE'"`
	SubscriptionExpires *time.Time     `json:"subscription_expires,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-"                     gorm:"index"`

	Settings *UserSettings `json:"settings,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UserSettings holds conversational preferences for a user.
type UserSettings struct {
	UserID    string    `json:"-"        gorm:"type:char(36);primaryKey"`
	Tone      string    `json:"tone"     gorm:"type:varchar(32);not null;default:'friendly'"`
	Language  string    `json:"language" gorm:"type:varchar(8);not null;default:'en'"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserSettings.
func (UserSettings) TableName() string { return "user_settings" }

// Companion is a scripted persona that answers user messages.
// Companions are seeded once and are read-mostly afterwards; Position keeps
// the seed order, which is also the mention-matching order.
type Companion struct {
	ID               string    `json:"id"               gorm:"type:varchar(64);primaryKey"`
	Name             string    `json:"name"             gorm:"type:varchar(64);not null;uniqueIndex:ux_companions_name"`
	Avatar           string    `json:"avatar"           gorm:"type:varchar(16);not null"`
	Description      string    `json:"description"      gorm:"type:text;not null"`
	Personality      string    `json:"personality"      gorm:"type:text;not null"`
	EnergyCost       int       `json:"energyCost"       gorm:"not null;check:energy_cost > 0"`
	SubscriptionTier string    `json:"subscriptionTier" gorm:"type:varchar(16);not null;default:'FREE'"`
	IsActive         bool      `json:"isActive"         gorm:"not null;default:true"`
	Position         int       `json:"-"                gorm:"not null;default:0;index"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

// TableName returns the database table name for Companion.
func (Companion) TableName() string { return "ai_companions" }

// Chat identifies one Telegram conversation for one user. Title is derived
// deterministically from the external chat id and is unique per user, which
// makes lazy creation idempotent.
type Chat struct {
	ID             string         `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID         string         `json:"user_id"          gorm:"type:char(36);not null;uniqueIndex:ux_chats_user_title,priority:1"`
	Title          string         `json:"title"            gorm:"type:varchar(255);not null;uniqueIndex:ux_chats_user_title,priority:2"`
	ExternalChatID int64          `json:"external_chat_id" gorm:"not null;index"`
	CompanionID    *string        `json:"companion_id"     gorm:"type:varchar(64)"`
	IsActive       bool           `json:"is_active"        gorm:"not null;default:true"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"                gorm:"index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Message is an append-only utterance within a chat.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ChatID: owning chat (indexed together with CreatedAt).
//   - Role: USER, ASSISTANT or SYSTEM (enforced by DB constraint).
//   - Content: full text content of the message.
//   - CreatedAt: creation timestamp, used for history ordering.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('USER','ASSISTANT','SYSTEM')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`

	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// CompanionSelection is the most recent explicit companion choice of a
// Telegram user. It acts as a short-lived sticky default.
type CompanionSelection struct {
	TelegramUserID int64     `json:"telegram_user_id" gorm:"primaryKey;autoIncrement:false"`
	CompanionID    string    `json:"companion_id"     gorm:"type:varchar(64);not null"`
	SelectedAt     time.Time `json:"selected_at"      gorm:"not null"`
}

// TableName returns the database table name for CompanionSelection.
func (CompanionSelection) TableName() string { return "companion_selections" }
