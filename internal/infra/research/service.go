package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aural/internal/domain"
	"aural/internal/infra"
)

const (
	sourceWikipedia = "wikipedia"
	sourceNews      = "newsapi"
)

// Service aggregates research results from Wikipedia summaries and NewsAPI
// article search. Either source failing only narrows the results; both
// failing is an error.
type Service struct {
	httpClient   *http.Client
	wikipediaURL string
	newsAPIURL   string
	newsAPIKey   string
	maxArticles  int
	logger       *slog.Logger
}

func NewService(newsAPIKey string, maxResults int, logger *slog.Logger) *Service {
	return NewServiceWithURLs(newsAPIKey, maxResults, "https://en.wikipedia.org", "https://newsapi.org", logger)
}

func NewServiceWithURLs(newsAPIKey string, maxResults int, wikipediaURL, newsAPIURL string, logger *slog.Logger) *Service {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Service{
		httpClient:   &http.Client{Timeout: 20 * time.Second},
		wikipediaURL: strings.TrimSuffix(wikipediaURL, "/"),
		newsAPIURL:   strings.TrimSuffix(newsAPIURL, "/"),
		newsAPIKey:   newsAPIKey,
		maxArticles:  maxResults,
		logger:       logger,
	}
}

func (s *Service) Search(ctx context.Context, query string) ([]domain.ResearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	var results []domain.ResearchResult
	var errs []error

	if wiki, err := s.searchWikipedia(ctx, query); err != nil {
		s.logger.Warn("wikipedia lookup failed", "query", query, "error", err)
		errs = append(errs, err)
	} else if wiki != nil {
		results = append(results, *wiki)
	}

	if s.newsAPIKey != "" {
		articles, err := s.searchNews(ctx, query)
		if err != nil {
			s.logger.Warn("news search failed", "query", query, "error", err)
			errs = append(errs, err)
		}
		results = append(results, articles...)
	}

	if len(results) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all research sources failed: %v", errs)
	}

	return results, nil
}

type wikipediaSummary struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Type    string `json:"type"`
	Content struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (s *Service) searchWikipedia(ctx context.Context, query string) (*domain.ResearchResult, error) {
	title := strings.ReplaceAll(query, " ", "_")
	endpoint := s.wikipediaURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)

	var summary wikipediaSummary

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// No article, not an infrastructure failure.
			summary = wikipediaSummary{}
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("wikipedia error %d (retryable)", resp.StatusCode)
			}
			return fmt.Errorf("wikipedia error %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(&summary)
	})

	if retryErr != nil {
		return nil, retryErr
	}

	if summary.Extract == "" || summary.Type == "disambiguation" {
		return nil, nil
	}

	now := time.Now()
	return &domain.ResearchResult{
		Query:       query,
		Title:       summary.Title,
		URL:         summary.Content.Desktop.Page,
		Content:     summary.Extract,
		Source:      sourceWikipedia,
		PublishedAt: now,
		CreatedAt:   now,
	}, nil
}

type newsResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		Description string    `json:"description"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (s *Service) searchNews(ctx context.Context, query string) ([]domain.ResearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "relevancy")
	params.Set("pageSize", fmt.Sprintf("%d", s.maxArticles))

	endpoint := s.newsAPIURL + "/v2/everything?" + params.Encode()

	var raw newsResponse

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("X-Api-Key", s.newsAPIKey)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("newsapi error %d (retryable)", resp.StatusCode)
			}
			return fmt.Errorf("newsapi error %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}

		if raw.Status != "ok" {
			return fmt.Errorf("newsapi status %s: %s", raw.Status, raw.Message)
		}
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	now := time.Now()
	results := make([]domain.ResearchResult, 0, len(raw.Articles))
	for _, a := range raw.Articles {
		if a.Title == "" {
			continue
		}
		results = append(results, domain.ResearchResult{
			Query:       query,
			Title:       a.Title,
			URL:         a.URL,
			Content:     a.Description,
			Source:      sourceNews,
			PublishedAt: a.PublishedAt,
			CreatedAt:   now,
		})
	}

	return results, nil
}
