package googlespeech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"aural/internal/infra"
)

// Client talks to the free Google speech-api/v2 recognize endpoint. Audio is
// posted as raw 16-bit PCM (audio/l16); WAV input is unwrapped first.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	language   string
}

func NewClient(apiKey, language string) *Client {
	return NewClientWithURL(apiKey, language, "http://www.google.com")
}

func NewClientWithURL(apiKey, language, baseURL string) *Client {
	if language == "" {
		language = "en-US"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		language:   language,
	}
}

type recognizeResponse struct {
	Result []struct {
		Alternative []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternative"`
		Final bool `json:"final"`
	} `json:"result"`
}

func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	pcm, sampleRate := unwrapWAV(audio)

	params := url.Values{}
	params.Set("client", "chromium")
	params.Set("lang", c.language)
	params.Set("key", c.apiKey)

	endpoint := fmt.Sprintf("%s/speech-api/v2/recognize?%s", c.baseURL, params.Encode())
	contentType := fmt.Sprintf("audio/l16; rate=%d", sampleRate)

	var transcript string

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(pcm))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("speech API error %d: %s (retryable)", resp.StatusCode, string(respBody))
			}
			return fmt.Errorf("speech API error %d: %s", resp.StatusCode, string(respBody))
		}

		transcript, err = parseResponse(resp.Body)
		return err
	})

	if retryErr != nil {
		return "", retryErr
	}

	return transcript, nil
}

// parseResponse handles the endpoint's line-delimited JSON: the first line is
// usually an empty {"result":[]} stub, followed by the actual result.
func parseResponse(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var parsed recognizeResponse
		if err := json.Unmarshal(line, &parsed); err != nil {
			return "", fmt.Errorf("parsing response line: %w", err)
		}

		for _, result := range parsed.Result {
			if len(result.Alternative) == 0 {
				continue
			}
			// The first alternative carries the highest confidence.
			return result.Alternative[0].Transcript, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	return "", fmt.Errorf("no transcription in response")
}

// unwrapWAV strips a RIFF/WAVE header and returns the PCM payload and sample
// rate. Non-WAV input is passed through as 16 kHz PCM.
func unwrapWAV(data []byte) ([]byte, int) {
	const defaultRate = 16000

	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, defaultRate
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))

	// Walk chunks to find "data"; the fmt chunk is not always 16 bytes.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if chunkID == "data" {
			end := offset + 8 + chunkSize
			if end > len(data) {
				end = len(data)
			}
			return data[offset+8 : end], sampleRate
		}
		offset += 8 + chunkSize
	}

	return data[44:], sampleRate
}
