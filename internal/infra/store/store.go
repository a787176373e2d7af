package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"aural/internal/domain"
)

// Store persists research results in a SQLite database. The schema is
// applied through versioned migrations so existing databases upgrade in
// place.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveResults(ctx context.Context, results []domain.ResearchResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO research_results (query, title, url, content, source, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			r.Query, r.Title, r.URL, r.Content, r.Source,
			r.PublishedAt.UTC().Format(time.RFC3339),
			createdAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting result %q: %w", r.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	s.logger.Debug("saved research results", "count", len(results))
	return nil
}

// SearchByQuery returns stored results whose query contains the given text,
// newest first.
func (s *Store) SearchByQuery(ctx context.Context, query string, limit int) ([]domain.ResearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, title, url, content, source, published_at, created_at
		FROM research_results
		WHERE query LIKE ?
		ORDER BY created_at DESC
		LIMIT ?`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// Recent returns the most recently stored results.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.ResearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, title, url, content, source, published_at, created_at
		FROM research_results
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]domain.ResearchResult, error) {
	var results []domain.ResearchResult

	for rows.Next() {
		var r domain.ResearchResult
		var publishedAt, createdAt string

		if err := rows.Scan(&r.ID, &r.Query, &r.Title, &r.URL, &r.Content, &r.Source, &publishedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r.PublishedAt, _ = time.Parse(time.RFC3339, publishedAt)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		results = append(results, r)
	}

	return results, rows.Err()
}
