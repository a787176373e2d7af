package research

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aural/internal/domain"
)

// ExportJSON writes results to a timestamped file in dir and returns the
// file's path.
func ExportJSON(dir, query string, results []domain.ResearchResult) (string, error) {
	path := exportPath(dir, query, "json")

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding results: %w", err)
	}

	if err := writeExport(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ExportMarkdown writes a human-readable report of the results.
func ExportMarkdown(dir, query string, results []domain.ResearchResult) (string, error) {
	path := exportPath(dir, query, "md")

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research: %s\n\n", query)
	fmt.Fprintf(&sb, "Generated %s, %d results.\n\n", time.Now().Format("2006-01-02 15:04"), len(results))

	for _, r := range results {
		fmt.Fprintf(&sb, "## %s\n\n", r.Title)
		fmt.Fprintf(&sb, "- Source: %s\n", r.Source)
		if r.URL != "" {
			fmt.Fprintf(&sb, "- URL: %s\n", r.URL)
		}
		if !r.PublishedAt.IsZero() {
			fmt.Fprintf(&sb, "- Published: %s\n", r.PublishedAt.Format("2006-01-02"))
		}
		fmt.Fprintf(&sb, "\n%s\n\n", r.Content)
	}

	if err := writeExport(path, []byte(sb.String())); err != nil {
		return "", err
	}
	return path, nil
}

func exportPath(dir, query, ext string) string {
	slug := strings.ToLower(strings.TrimSpace(query))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	if len(slug) > 40 {
		slug = slug[:40]
	}

	name := fmt.Sprintf("research_%s_%s.%s", slug, time.Now().Format("20060102_150405"), ext)
	return filepath.Join(dir, name)
}

func writeExport(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}
