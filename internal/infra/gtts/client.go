package gtts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aural/internal/infra"
)

// maxChunkLen is the longest text fragment the translate_tts endpoint
// accepts per request.
const maxChunkLen = 200

// Client fetches MP3 speech from the Google Translate TTS endpoint, the same
// service gTTS wraps. Long texts are split on word boundaries and the MP3
// segments concatenated.
type Client struct {
	httpClient *http.Client
	baseURL    string
	language   string
}

func NewClient(language string) *Client {
	return NewClientWithURL(language, "https://translate.google.com")
}

func NewClientWithURL(language, baseURL string) *Client {
	if language == "" {
		language = "en"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		language:   language,
	}
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no text to speak")
	}

	chunks := splitText(text, maxChunkLen)

	var mp3 []byte
	for i, chunk := range chunks {
		data, err := c.fetchChunk(ctx, chunk, i, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("synthesizing chunk %d: %w", i, err)
		}
		mp3 = append(mp3, data...)
	}

	return mp3, nil
}

func (c *Client) fetchChunk(ctx context.Context, text string, idx, total int) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", c.language)
	params.Set("client", "tw-ob")
	params.Set("idx", fmt.Sprint(idx))
	params.Set("total", fmt.Sprint(total))
	params.Set("textlen", fmt.Sprint(len(text)))

	endpoint := c.baseURL + "/translate_tts?" + params.Encode()

	var data []byte

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
				return fmt.Errorf("tts error %d (retryable)", resp.StatusCode)
			}
			return fmt.Errorf("tts error %d", resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading audio: %w", err)
		}
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return data, nil
}

// splitText breaks text into chunks no longer than limit, preferring word
// boundaries.
func splitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	words := strings.Fields(text)
	var current strings.Builder

	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		// A single word longer than the limit gets hard-split.
		for len(word) > limit {
			chunks = append(chunks, word[:limit])
			word = word[limit:]
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
