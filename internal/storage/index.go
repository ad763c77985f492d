package storage

import (
	"context"
	"sort"
	"sync"
)

// SessionIndexEntry is one row of the session index: enough to list and
// sort sessions without reading every session file off disk.
type SessionIndexEntry struct {
	ID        string `json:"id"`
	ParentID  string `json:"parentID,omitempty"`
	Title     string `json:"title"`
	Updated   int64  `json:"updated"`
	Directory string `json:"directory"`
}

// sessionIndexPath is the fixed storage path for the index document.
var sessionIndexPath = []string{"index", "sessions"}

// SessionIndex maintains a synced, single-file index of session metadata so
// listing sessions doesn't require scanning every session/<id>.json file.
type SessionIndex struct {
	storage *Storage
	mu      sync.Mutex
}

// NewSessionIndex wraps storage with session-index bookkeeping.
func NewSessionIndex(storage *Storage) *SessionIndex {
	return &SessionIndex{storage: storage}
}

// Upsert inserts or replaces an entry, keyed by ID.
func (si *SessionIndex) Upsert(ctx context.Context, entry SessionIndexEntry) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	entries, err := si.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i, e := range entries {
		if e.ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	return si.storage.Put(ctx, sessionIndexPath, entries)
}

// Remove deletes an entry by ID, if present.
func (si *SessionIndex) Remove(ctx context.Context, id string) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	entries, err := si.load(ctx)
	if err != nil {
		return err
	}

	out := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}

	return si.storage.Put(ctx, sessionIndexPath, out)
}

// List returns all indexed sessions, most-recently-updated first.
func (si *SessionIndex) List(ctx context.Context) ([]SessionIndexEntry, error) {
	si.mu.Lock()
	defer si.mu.Unlock()

	entries, err := si.load(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Updated > entries[j].Updated
	})
	return entries, nil
}

// Children returns every entry whose ParentID matches id; it backs
// session.Store.Children.
func (si *SessionIndex) Children(ctx context.Context, id string) ([]SessionIndexEntry, error) {
	all, err := si.List(ctx)
	if err != nil {
		return nil, err
	}
	var children []SessionIndexEntry
	for _, e := range all {
		if e.ParentID == id {
			children = append(children, e)
		}
	}
	return children, nil
}

func (si *SessionIndex) load(ctx context.Context) ([]SessionIndexEntry, error) {
	var entries []SessionIndexEntry
	if err := si.storage.Get(ctx, sessionIndexPath, &entries); err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}
