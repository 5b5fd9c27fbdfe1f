package storage

import (
	"time"

	"gorm.io/gorm"
)

// Identity is the stored user account the realtime core resolves
// display names and follower graphs against.
type Identity struct {
	ID          string         `gorm:"primarykey;size:64" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	DisplayName string         `gorm:"size:50;not null" json:"display_name"`
}

// TableName returns the table name for Identity.
func (Identity) TableName() string {
	return "identities"
}

// Follower is one edge of the follower graph: FollowerID follows
// IdentityID.
type Follower struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	IdentityID string    `gorm:"size:64;not null;index:idx_follow,unique" json:"identity_id"`
	FollowerID string    `gorm:"size:64;not null;index:idx_follow,unique" json:"follower_id"`
}

// TableName returns the table name for Follower.
func (Follower) TableName() string {
	return "followers"
}

// ChatMessage is a persisted chat message.
type ChatMessage struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ChatID    string    `gorm:"size:64;not null;index" json:"chat_id"`
	SenderID  string    `gorm:"size:64;not null" json:"sender_id"`
	Content   string    `gorm:"size:5000;not null" json:"content"`
}

// TableName returns the table name for ChatMessage.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// ViewerActivity records the most recent view of a content by an
// identity. One row per (content, identity) pair.
type ViewerActivity struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	ContentID  string    `gorm:"size:64;not null;index:idx_viewer,unique" json:"content_id"`
	IdentityID string    `gorm:"size:64;not null;index:idx_viewer,unique" json:"identity_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// TableName returns the table name for ViewerActivity.
func (ViewerActivity) TableName() string {
	return "viewer_activities"
}

// EngagementCounter is a named per-content counter (views, edits, ...).
type EngagementCounter struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
	ContentID string    `gorm:"size:64;not null;index:idx_counter,unique" json:"content_id"`
	Kind      string    `gorm:"size:32;not null;index:idx_counter,unique" json:"kind"`
	Value     int64     `gorm:"not null;default:0" json:"value"`
}

// TableName returns the table name for EngagementCounter.
func (EngagementCounter) TableName() string {
	return "engagement_counters"
}
