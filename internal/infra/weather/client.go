package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aural/internal/domain"
	"aural/internal/infra"
)

// Client fetches current conditions from wttr.in's JSON endpoint. No API key
// is needed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	unit       string // "imperial" or "metric"
}

func NewClient(unit string) *Client {
	return NewClientWithURL(unit, "https://wttr.in")
}

func NewClientWithURL(unit, baseURL string) *Client {
	if unit != "metric" {
		unit = "imperial"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		unit:       unit,
	}
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		TempF       string `json:"temp_F"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []struct {
			Value string `json:"value"`
		} `json:"areaName"`
	} `json:"nearest_area"`
}

func (c *Client) Current(ctx context.Context, location string) (domain.WeatherReport, error) {
	if strings.TrimSpace(location) == "" {
		return domain.WeatherReport{}, fmt.Errorf("location is empty")
	}

	endpoint := c.baseURL + "/" + url.PathEscape(location) + "?format=j1"

	var raw wttrResponse

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
				return fmt.Errorf("weather error %d (retryable)", resp.StatusCode)
			}
			return fmt.Errorf("weather error %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		return nil
	})

	if retryErr != nil {
		return domain.WeatherReport{}, retryErr
	}

	if len(raw.CurrentCondition) == 0 {
		return domain.WeatherReport{}, fmt.Errorf("no current conditions for %q", location)
	}

	cond := raw.CurrentCondition[0]

	tempStr := cond.TempF
	unitLabel := "Fahrenheit"
	if c.unit == "metric" {
		tempStr = cond.TempC
		unitLabel = "Celsius"
	}

	temp, err := strconv.Atoi(tempStr)
	if err != nil {
		return domain.WeatherReport{}, fmt.Errorf("parsing temperature %q: %w", tempStr, err)
	}

	report := domain.WeatherReport{
		Location:    location,
		Temperature: temp,
		Unit:        unitLabel,
	}
	if len(cond.WeatherDesc) > 0 {
		report.Condition = cond.WeatherDesc[0].Value
	}
	if len(raw.NearestArea) > 0 && len(raw.NearestArea[0].AreaName) > 0 {
		report.Location = raw.NearestArea[0].AreaName[0].Value
	}

	return report, nil
}
