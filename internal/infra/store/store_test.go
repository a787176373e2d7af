package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"aural/internal/domain"
	"aural/internal/infra/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), discardLogger())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResults(query string) []domain.ResearchResult {
	now := time.Now()
	return []domain.ResearchResult{
		{
			Query:       query,
			Title:       "First",
			URL:         "https://example.com/1",
			Content:     "first content",
			Source:      "wikipedia",
			PublishedAt: now.Add(-time.Hour),
			CreatedAt:   now,
		},
		{
			Query:       query,
			Title:       "Second",
			URL:         "https://example.com/2",
			Content:     "second content",
			Source:      "newsapi",
			PublishedAt: now,
			CreatedAt:   now,
		},
	}
}

func TestStore_SaveAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveResults(ctx, sampleResults("golang news")); err != nil {
		t.Fatalf("SaveResults error: %v", err)
	}

	results, err := s.SearchByQuery(ctx, "golang", 10)
	if err != nil {
		t.Fatalf("SearchByQuery error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	for _, r := range results {
		if r.ID == 0 {
			t.Error("expected assigned row id")
		}
		if r.Query != "golang news" {
			t.Errorf("query: got %s", r.Query)
		}
	}
}

func TestStore_SearchByQuery_NoMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveResults(ctx, sampleResults("golang")); err != nil {
		t.Fatalf("SaveResults error: %v", err)
	}

	results, err := s.SearchByQuery(ctx, "rustlang", 10)
	if err != nil {
		t.Fatalf("SearchByQuery error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results: got %d, want 0", len(results))
	}
}

func TestStore_Recent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveResults(ctx, sampleResults("a")); err != nil {
		t.Fatalf("SaveResults error: %v", err)
	}
	if err := s.SaveResults(ctx, sampleResults("b")); err != nil {
		t.Fatalf("SaveResults error: %v", err)
	}

	results, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("results: got %d, want 3", len(results))
	}
}

func TestStore_SaveResults_Empty(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveResults(context.Background(), nil); err != nil {
		t.Fatalf("SaveResults error: %v", err)
	}
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := store.Open(path, discardLogger())
	if err != nil {
		t.Fatalf("first Open error: %v", err)
	}
	if err := s1.SaveResults(context.Background(), sampleResults("persisted")); err != nil {
		t.Fatalf("SaveResults error: %v", err)
	}
	s1.Close()

	// Reopening runs migrate again against the existing schema.
	s2, err := store.Open(path, discardLogger())
	if err != nil {
		t.Fatalf("second Open error: %v", err)
	}
	defer s2.Close()

	results, err := s2.SearchByQuery(context.Background(), "persisted", 10)
	if err != nil {
		t.Fatalf("SearchByQuery error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("results after reopen: got %d, want 2", len(results))
	}
}
