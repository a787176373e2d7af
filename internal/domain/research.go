package domain

import "time"

// ResearchResult is a single document found by the research pipeline.
type ResearchResult struct {
	ID          int64
	Query       string
	Title       string
	URL         string
	Content     string
	Source      string
	PublishedAt time.Time
	CreatedAt   time.Time
}
