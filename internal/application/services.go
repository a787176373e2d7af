package application

import (
	"context"

	"aural/internal/domain"
)

type WeatherService interface {
	Current(ctx context.Context, location string) (domain.WeatherReport, error)
}

type ResearchService interface {
	Search(ctx context.Context, query string) ([]domain.ResearchResult, error)
}

type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

// Location is the resolved position of the machine running the assistant.
type Location struct {
	Latitude  float64
	Longitude float64
	City      string
	Address   string
}

type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}
