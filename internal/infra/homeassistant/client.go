package homeassistant

import (
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

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// stateEntry is a Home Assistant entity state as returned by /api/states.
type stateEntry struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged string                 `json:"last_changed"`
}

// CallService invokes a service like "turn_on" against an entity. The service
// domain comes from the entity ID ("light.living_room" -> "light").
func (c *Client) CallService(ctx context.Context, service string, entityID string) error {
	entityDomain := domain.EntityDomain(entityID)
	if entityDomain == "" {
		return fmt.Errorf("invalid entity id: %s", entityID)
	}

	path := fmt.Sprintf("/api/services/%s/%s", entityDomain, service)

	body, err := json.Marshal(map[string]interface{}{
		"entity_id": entityID,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, path, body); err != nil {
		return fmt.Errorf("calling %s on %s: %w", service, entityID, err)
	}

	return nil
}

// State returns the current state string of a single entity.
func (c *Client) State(ctx context.Context, entityID string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return "", fmt.Errorf("fetching state: %w", err)
	}

	var entry stateEntry
	if err := json.Unmarshal(resp, &entry); err != nil {
		return "", fmt.Errorf("parsing state: %w", err)
	}

	return entry.State, nil
}

// States lists all entities the assistant can control.
func (c *Client) States(ctx context.Context) ([]domain.Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching states: %w", err)
	}

	var entries []stateEntry
	if err := json.Unmarshal(resp, &entries); err != nil {
		return nil, fmt.Errorf("parsing states: %w", err)
	}

	entities := make([]domain.Entity, 0, len(entries))
	for _, e := range entries {
		entityDomain := domain.EntityDomain(e.EntityID)
		if !controllableDomain(entityDomain) {
			continue
		}

		name := e.EntityID
		if friendlyName, ok := e.Attributes["friendly_name"].(string); ok {
			name = friendlyName
		}

		entities = append(entities, domain.Entity{
			ID:        e.EntityID,
			Name:      name,
			Domain:    entityDomain,
			State:     e.State,
			Available: e.State != "unavailable",
		})
	}

	return entities, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("unauthorized: check your Home Assistant token")
		}

		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("home assistant API error %d (retryable): %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("home assistant API error %d: %s", resp.StatusCode, string(respBody))
		}

		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}

func controllableDomain(entityDomain string) bool {
	switch entityDomain {
	case "light", "switch", "fan", "climate", "media_player", "cover", "lock", "scene", "weather":
		return true
	default:
		return false
	}
}
