package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aural/internal/application"
	"aural/internal/infra"
)

// Client locates the machine by its public IP and reverse-geocodes the
// coordinates into a street address via Nominatim.
type Client struct {
	httpClient   *http.Client
	ipAPIURL     string
	nominatimURL string
}

func NewClient() *Client {
	return NewClientWithURLs("http://ip-api.com", "https://nominatim.openstreetmap.org")
}

func NewClientWithURLs(ipAPIURL, nominatimURL string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		ipAPIURL:     strings.TrimSuffix(ipAPIURL, "/"),
		nominatimURL: strings.TrimSuffix(nominatimURL, "/"),
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
}

func (c *Client) Locate(ctx context.Context) (application.Location, error) {
	ip, err := c.lookupIP(ctx)
	if err != nil {
		return application.Location{}, fmt.Errorf("locating by IP: %w", err)
	}

	loc := application.Location{
		Latitude:  ip.Lat,
		Longitude: ip.Lon,
		City:      ip.City,
	}

	// The reverse geocode refines the city and adds a readable address, but a
	// failure should not lose the coordinates we already have.
	if rev, err := c.reverse(ctx, ip.Lat, ip.Lon); err == nil {
		loc.Address = rev.DisplayName
		if city := pickCity(rev); city != "" {
			loc.City = city
		}
	}

	return loc, nil
}

func (c *Client) lookupIP(ctx context.Context) (*ipAPIResponse, error) {
	var result ipAPIResponse

	retryErr := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ipAPIURL+"/json", nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ip-api error %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}

		if result.Status != "success" {
			return fmt.Errorf("ip-api lookup failed: %s", result.Message)
		}
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return &result, nil
}

func (c *Client) reverse(ctx context.Context, lat, lon float64) (*nominatimResponse, error) {
	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%f&lon=%f", c.nominatimURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	// Nominatim rejects requests without an identifying agent.
	req.Header.Set("User-Agent", "Aural")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim error %d", resp.StatusCode)
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &result, nil
}

func pickCity(rev *nominatimResponse) string {
	switch {
	case rev.Address.City != "":
		return rev.Address.City
	case rev.Address.Town != "":
		return rev.Address.Town
	case rev.Address.Village != "":
		return rev.Address.Village
	}
	return ""
}
