package dispatch

import (
	"context"
	"errors"

	"github.com/example/blog-realtime/modules/storage"
)

// ErrStorageUnavailable is returned when a persistence call happens
// before the storage module has opened its database.
var ErrStorageUnavailable = errors.New("storage not started")

// StorageAdapter adapts the storage module to the Persistence
// interface the dispatcher consumes. The repository is resolved per
// call because it only exists after the module starts.
type StorageAdapter struct {
	module *storage.StorageModule
}

// Compile-time interface check.
var _ Persistence = (*StorageAdapter)(nil)

// NewStorageAdapter wraps a storage module.
func NewStorageAdapter(module *storage.StorageModule) *StorageAdapter {
	return &StorageAdapter{module: module}
}

func (a *StorageAdapter) repo() (*storage.Repository, error) {
	repo := a.module.Repository()
	if repo == nil {
		return nil, ErrStorageUnavailable
	}
	return repo, nil
}

func (a *StorageAdapter) RecordViewerActivity(ctx context.Context, contentID, identityID string) error {
	repo, err := a.repo()
	if err != nil {
		return err
	}
	return repo.RecordViewerActivity(ctx, contentID, identityID)
}

func (a *StorageAdapter) AppendMessage(ctx context.Context, id, chatID, senderID, content string) error {
	repo, err := a.repo()
	if err != nil {
		return err
	}
	return repo.AppendMessage(ctx, id, chatID, senderID, content)
}

func (a *StorageAdapter) UpsertEngagementCounter(ctx context.Context, contentID, kind string, delta int64) error {
	repo, err := a.repo()
	if err != nil {
		return err
	}
	return repo.UpsertEngagementCounter(ctx, contentID, kind, delta)
}

func (a *StorageAdapter) FetchFollowerIDs(ctx context.Context, identityID string) ([]string, error) {
	repo, err := a.repo()
	if err != nil {
		return nil, err
	}
	return repo.FetchFollowerIDs(ctx, identityID)
}

func (a *StorageAdapter) FetchIdentity(ctx context.Context, identityID string) (IdentityRecord, error) {
	repo, err := a.repo()
	if err != nil {
		return IdentityRecord{}, err
	}
	rec, err := repo.FetchIdentity(ctx, identityID)
	if err != nil {
		return IdentityRecord{}, err
	}
	return IdentityRecord{ID: rec.ID, DisplayName: rec.DisplayName}, nil
}
