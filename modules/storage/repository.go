// Package storage is the persistence collaborator the realtime core
// issues best-effort side effects against. The core never waits on it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository provides access to the platform's persisted state.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RecordViewerActivity upserts the (content, identity) viewer row with
// the current timestamp.
func (r *Repository) RecordViewerActivity(ctx context.Context, contentID, identityID string) error {
	row := ViewerActivity{
		ContentID:  contentID,
		IdentityID: identityID,
		LastSeenAt: time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}, {Name: "identity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record viewer activity: %w", err)
	}
	return nil
}

// AppendMessage persists a chat message.
func (r *Repository) AppendMessage(ctx context.Context, id, chatID, senderID, content string) error {
	msg := ChatMessage{
		ID:       id,
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// UpsertEngagementCounter adds delta to the named per-content counter,
// creating the row on first use.
func (r *Repository) UpsertEngagementCounter(ctx context.Context, contentID, kind string, delta int64) error {
	row := EngagementCounter{
		ContentID: contentID,
		Kind:      kind,
		Value:     delta,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_id"}, {Name: "kind"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      gorm.Expr("value + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert engagement counter: %w", err)
	}
	return nil
}

// FetchFollowerIDs returns the ids of every identity following the
// given identity.
func (r *Repository) FetchFollowerIDs(ctx context.Context, identityID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&Follower{}).
		Where("identity_id = ?", identityID).
		Pluck("follower_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch followers: %w", err)
	}
	return ids, nil
}

// FetchIdentity returns the stored identity record.
func (r *Repository) FetchIdentity(ctx context.Context, identityID string) (*Identity, error) {
	var identity Identity
	err := r.db.WithContext(ctx).First(&identity, "id = ?", identityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch identity: %w", err)
	}
	return &identity, nil
}
