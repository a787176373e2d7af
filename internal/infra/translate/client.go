package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"aural/internal/infra"
)

// Client uses the unauthenticated Google Translate endpoint (client=gtx) to
// translate short phrases, mainly hotwords. Translations are cached per
// language since the phrase set is static.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.Mutex
	cache map[string]string // lang + ":" + text -> translation
}

func NewClient() *Client {
	return NewClientWithURL("https://translate.googleapis.com")
}

func NewClientWithURL(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cache:      make(map[string]string),
	}
}

func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	cacheKey := targetLang + ":" + text

	c.mu.Lock()
	if cached, ok := c.cache[cacheKey]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", targetLang)
	params.Set("dt", "t")
	params.Set("q", text)

	endpoint := c.baseURL + "/translate_a/single?" + params.Encode()

	var translated string

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("translate error %d (retryable)", resp.StatusCode)
			}
			return fmt.Errorf("translate error %d", resp.StatusCode)
		}

		translated, err = parseResponse(resp.Body)
		return err
	})

	if retryErr != nil {
		return "", retryErr
	}

	c.mu.Lock()
	c.cache[cacheKey] = translated
	c.mu.Unlock()

	return translated, nil
}

// parseResponse digs the translation out of the endpoint's nested-array
// response: [[["hola","hello",...],...],...].
func parseResponse(body io.Reader) (string, error) {
	var raw []any
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	if len(raw) == 0 {
		return "", fmt.Errorf("empty translate response")
	}

	sentences, ok := raw[0].([]any)
	if !ok || len(sentences) == 0 {
		return "", fmt.Errorf("unexpected translate response shape")
	}

	var sb strings.Builder
	for _, s := range sentences {
		parts, ok := s.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if text, ok := parts[0].(string); ok {
			sb.WriteString(text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no translation in response")
	}

	return sb.String(), nil
}
