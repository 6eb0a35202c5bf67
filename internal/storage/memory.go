// Package storage contains the in-memory media repository used by tests and
// by the API server when no database is configured.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/mediavault/internal/apperr"
	"github.com/dharsanguruparan/mediavault/internal/model"
)

// MemoryStore keeps media records in a map guarded by an RWMutex. It honours
// the same owner scoping as the PostgreSQL repository.
type MemoryStore struct {
	mu    sync.RWMutex
	media map[string]*model.MediaRecord
	now   func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		media: make(map[string]*model.MediaRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts rec. Storage keys are unique across all records.
func (m *MemoryStore) Create(_ context.Context, rec *model.MediaRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.media {
		if existing.S3Key == rec.S3Key {
			return fmt.Errorf("insert media: %w", apperr.ErrConflict)
		}
	}
	now := m.now()
	if rec.ID == "" {
		rec.ID = model.NewMediaID()
	}
	if _, ok := m.media[rec.ID]; ok {
		return fmt.Errorf("insert media: %w", apperr.ErrConflict)
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = now
	}
	rec.UpdatedAt = now
	stored := *rec
	m.media[rec.ID] = &stored
	return nil
}

// lookup must be called with the lock held.
func (m *MemoryStore) lookup(id, ownerID string) (*model.MediaRecord, error) {
	rec, ok := m.media[id]
	if !ok || rec.UserID != ownerID {
		return nil, apperr.ErrNotFound
	}
	return rec, nil
}

// Get returns a copy of the record id owned by ownerID.
func (m *MemoryStore) Get(_ context.Context, id, ownerID string) (*model.MediaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, err := m.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	out := *rec
	return &out, nil
}

// List returns ownerID's records newest first.
func (m *MemoryStore) List(_ context.Context, ownerID string, f model.ListFilter) ([]model.MediaRecord, error) {
	m.mu.RLock()
	matches := make([]model.MediaRecord, 0)
	for _, rec := range m.media {
		if rec.UserID != ownerID {
			continue
		}
		if f.MediaType != "" && f.MediaType != model.KindAll && string(rec.MediaType) != string(f.MediaType) {
			continue
		}
		if f.ShowFavorites && !rec.IsFavorite {
			continue
		}
		matches = append(matches, *rec)
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UploadedAt.Equal(matches[j].UploadedAt) {
			return matches[i].UploadedAt.After(matches[j].UploadedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	if f.Offset >= len(matches) {
		return []model.MediaRecord{}, nil
	}
	matches = matches[f.Offset:]
	if f.Limit > 0 && len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	return matches, nil
}

// ToggleFavorite flips the favorite flag and bumps UpdatedAt.
func (m *MemoryStore) ToggleFavorite(_ context.Context, id, ownerID string) (*model.MediaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	rec.IsFavorite = !rec.IsFavorite
	rec.UpdatedAt = m.now()
	out := *rec
	return &out, nil
}

// Delete removes the record and returns it as it was.
func (m *MemoryStore) Delete(_ context.Context, id, ownerID string) (*model.MediaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.lookup(id, ownerID)
	if err != nil {
		return nil, err
	}
	delete(m.media, id)
	return rec, nil
}

// KeyReferenced reports whether any record points at key.
func (m *MemoryStore) KeyReferenced(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.media {
		for _, k := range rec.StorageKeys() {
			if k == key {
				return true, nil
			}
		}
	}
	return false, nil
}
