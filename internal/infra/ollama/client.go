package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aural/internal/domain"
	"aural/internal/infra"
)

// Client talks to a local Ollama server. Generation goes through the
// streaming /api/generate endpoint; when that fails and a fallback URL is
// configured, the OpenAI-compatible /v1/chat/completions endpoint gets the
// full conversation instead.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	fallbackURL string
}

func NewClient(baseURL, fallbackURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	fallbackURL = strings.TrimSuffix(fallbackURL, "/")

	return &Client{
		// Local generation can be slow on big models.
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baseURL:     baseURL,
		fallbackURL: fallbackURL,
	}
}

// NormalizeModel appends :latest to untagged model names so lookups match
// what Ollama lists.
func NormalizeModel(model string) string {
	if strings.Contains(model, ":") {
		return model
	}
	return model + ":latest"
}

func (c *Client) Chat(ctx context.Context, model string, messages []domain.Message) (string, error) {
	model = NormalizeModel(model)

	prompt := lastUserMessage(messages)
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("no message to send")
	}

	reply, err := c.generate(ctx, model, prompt)
	if err == nil {
		return reply, nil
	}

	if c.fallbackURL == "" {
		return "", err
	}

	reply, fallbackErr := c.chatCompletions(ctx, model, messages)
	if fallbackErr != nil {
		return "", fmt.Errorf("generate failed (%v), fallback failed: %w", err, fallbackErr)
	}
	return reply, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Client) generate(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var reply string

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("ollama error %d: %s (retryable)", resp.StatusCode, string(respBody))
			}
			return fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(respBody))
		}

		reply, err = readStream(resp.Body)
		return err
	})

	if retryErr != nil {
		return "", retryErr
	}

	return reply, nil
}

// readStream concatenates the response fields of the newline-delimited JSON
// chunks Ollama streams back.
func readStream(body io.Reader) (string, error) {
	var sb strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("parsing stream chunk: %w", err)
		}

		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response from ollama")
	}

	return sb.String(), nil
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chatCompletions(ctx context.Context, model string, messages []domain.Message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var result chatResponse

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.fallbackURL+"/v1/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("chat completions error %d: %s (retryable)", resp.StatusCode, string(respBody))
			}
			return fmt.Errorf("chat completions error %d: %s", resp.StatusCode, string(respBody))
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		return nil
	})

	if retryErr != nil {
		return "", retryErr
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}

func lastUserMessage(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
