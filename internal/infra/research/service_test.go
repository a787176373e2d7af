package research_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"aural/internal/domain"
	"aural/internal/infra/research"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_Search_CombinesSources(t *testing.T) {
	wiki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/rest_v1/page/summary/") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		io.WriteString(w, `{
			"title": "Go (programming language)",
			"extract": "Go is a statically typed language.",
			"type": "standard",
			"content_urls": {"desktop": {"page": "https://en.wikipedia.org/wiki/Go"}}
		}`)
	}))
	defer wiki.Close()

	news := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		io.WriteString(w, `{
			"status": "ok",
			"articles": [
				{"title": "Go 1.23 released", "url": "https://example.com/go", "description": "New release.", "publishedAt": "2024-08-13T10:00:00Z"},
				{"title": "", "url": "https://example.com/empty", "description": "dropped"}
			]
		}`)
	}))
	defer news.Close()

	svc := research.NewServiceWithURLs("test-key", 5, wiki.URL, news.URL, discardLogger())

	results, err := svc.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if results[0].Source != "wikipedia" {
		t.Errorf("first source: got %s, want wikipedia", results[0].Source)
	}
	if results[1].Source != "newsapi" {
		t.Errorf("second source: got %s, want newsapi", results[1].Source)
	}
	if results[1].Title != "Go 1.23 released" {
		t.Errorf("news title: got %s", results[1].Title)
	}
}

func TestService_Search_WikipediaMissIsNotFatal(t *testing.T) {
	wiki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no article", http.StatusNotFound)
	}))
	defer wiki.Close()

	news := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok","articles":[{"title":"Something","url":"u","description":"d","publishedAt":"2024-01-01T00:00:00Z"}]}`)
	}))
	defer news.Close()

	svc := research.NewServiceWithURLs("k", 5, wiki.URL, news.URL, discardLogger())

	results, err := svc.Search(context.Background(), "obscure topic")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].Source != "newsapi" {
		t.Errorf("results: got %+v", results)
	}
}

func TestService_Search_NoAPIKeySkipsNews(t *testing.T) {
	wiki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"title":"T","extract":"E","type":"standard","content_urls":{"desktop":{"page":"p"}}}`)
	}))
	defer wiki.Close()

	svc := research.NewServiceWithURLs("", 5, wiki.URL, "http://localhost:0", discardLogger())

	results, err := svc.Search(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].Source != "wikipedia" {
		t.Errorf("results: got %+v", results)
	}
}

func TestService_Search_EmptyQuery(t *testing.T) {
	svc := research.NewServiceWithURLs("", 5, "http://localhost:0", "http://localhost:0", discardLogger())

	if _, err := svc.Search(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestExportJSONAndMarkdown(t *testing.T) {
	dir := t.TempDir()

	results := []domain.ResearchResult{
		{
			Query:       "golang",
			Title:       "Go",
			URL:         "https://go.dev",
			Content:     "A language.",
			Source:      "wikipedia",
			PublishedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	jsonPath, err := research.ExportJSON(dir, "golang tips", results)
	if err != nil {
		t.Fatalf("ExportJSON error: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !strings.Contains(string(data), `"Title": "Go"`) {
		t.Errorf("json export missing title: %s", data)
	}

	mdPath, err := research.ExportMarkdown(dir, "golang tips", results)
	if err != nil {
		t.Fatalf("ExportMarkdown error: %v", err)
	}
	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !strings.Contains(string(md), "# Research: golang tips") {
		t.Errorf("markdown export missing header: %s", md)
	}
	if !strings.Contains(string(md), "## Go") {
		t.Errorf("markdown export missing result section: %s", md)
	}
}
