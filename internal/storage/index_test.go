package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSessionIndex_UpsertAndList(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)
	idx := NewSessionIndex(s)
	ctx := context.Background()

	if err := idx.Upsert(ctx, SessionIndexEntry{ID: "a", Title: "first", Updated: 1}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := idx.Upsert(ctx, SessionIndexEntry{ID: "b", Title: "second", Updated: 2}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	entries, err := idx.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "b" {
		t.Errorf("expected most-recently-updated first, got %s", entries[0].ID)
	}
}

func TestSessionIndex_UpsertReplaces(t *testing.T) {
	tmpDir := t.TempDir()
	idx := NewSessionIndex(New(tmpDir))
	ctx := context.Background()

	idx.Upsert(ctx, SessionIndexEntry{ID: "a", Title: "v1", Updated: 1})
	idx.Upsert(ctx, SessionIndexEntry{ID: "a", Title: "v2", Updated: 2})

	entries, _ := idx.List(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", len(entries))
	}
	if entries[0].Title != "v2" {
		t.Errorf("expected v2, got %s", entries[0].Title)
	}
}

func TestSessionIndex_Remove(t *testing.T) {
	tmpDir := t.TempDir()
	idx := NewSessionIndex(New(tmpDir))
	ctx := context.Background()

	idx.Upsert(ctx, SessionIndexEntry{ID: "a", Updated: 1})
	idx.Upsert(ctx, SessionIndexEntry{ID: "b", Updated: 2})

	if err := idx.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	entries, _ := idx.List(ctx)
	if len(entries) != 1 || entries[0].ID != "b" {
		t.Fatalf("expected only b to remain, got %+v", entries)
	}
}

func TestSessionIndex_Children(t *testing.T) {
	tmpDir := t.TempDir()
	idx := NewSessionIndex(New(tmpDir))
	ctx := context.Background()

	idx.Upsert(ctx, SessionIndexEntry{ID: "root", Updated: 1})
	idx.Upsert(ctx, SessionIndexEntry{ID: "child1", ParentID: "root", Updated: 2})
	idx.Upsert(ctx, SessionIndexEntry{ID: "child2", ParentID: "root", Updated: 3})
	idx.Upsert(ctx, SessionIndexEntry{ID: "unrelated", Updated: 4})

	children, err := idx.Children(ctx, "root")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
}

func TestStorage_Put_BackupRotation(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(tmpDir)
	ctx := context.Background()

	if err := s.Put(ctx, []string{"doc"}, testData{ID: "1", Name: "first"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, []string{"doc"}, testData{ID: "1", Name: "second"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	bakPath := filepath.Join(tmpDir, "doc.json.bak")
	data, err := os.ReadFile(bakPath)
	if err != nil {
		t.Fatalf("expected backup file to exist: %v", err)
	}
	if !contains(string(data), "first") {
		t.Errorf("expected backup to contain the previous write, got %s", data)
	}

	var current testData
	if err := s.Get(ctx, []string{"doc"}, &current); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if current.Name != "second" {
		t.Errorf("expected current file to contain the latest write, got %s", current.Name)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
