package upload

import (
	"sort"
	"sync"

	"github.com/dharsanguruparan/mediavault/internal/model"
)

// FileID identifies one tracked file. IDs are handed out in increasing order
// and never reused by a Tracker, so two files with the same name queued at
// the same instant still get distinct entries.
type FileID uint64

// Tracker keeps the UploadState of every file in a batch.
type Tracker struct {
	mu     sync.RWMutex
	next   FileID
	states map[FileID]State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[FileID]State)}
}

// Add registers a new idle entry and returns its id.
func (t *Tracker) Add() FileID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.states[t.next] = State{Stage: StageIdle}
	return t.next
}

// Set replaces the state of id. Entries dropped by Reset stay dropped.
func (t *Tracker) Set(id FileID, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[id]; ok {
		t.states[id] = s
	}
}

// State returns the state of id.
func (t *Tracker) State(id FileID) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[id]
	return s, ok
}

// IDs lists the tracked ids in the order they were added.
func (t *Tracker) IDs() []FileID {
	t.mu.RLock()
	ids := make([]FileID, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TotalProgress sums loaded and total bytes across every tracked entry.
// With nothing tracked it reports zero.
func (t *Tracker) TotalProgress() model.UploadProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var loaded, total int64
	for _, s := range t.states {
		if s.Progress == nil {
			continue
		}
		loaded += s.Progress.Loaded
		total += s.Progress.Total
	}
	return model.NewUploadProgress(loaded, total)
}

// AnyUploading reports whether any tracked file is still in flight.
func (t *Tracker) AnyUploading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.states {
		if s.Uploading {
			return true
		}
	}
	return false
}

// Reset forgets every entry.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.states = make(map[FileID]State)
	t.mu.Unlock()
}
