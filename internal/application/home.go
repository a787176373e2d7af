package application

import (
	"context"

	"aural/internal/domain"
)

type HomeController interface {
	CallService(ctx context.Context, service string, entityID string) error
	State(ctx context.Context, entityID string) (string, error)
}

type EntityRegistry interface {
	Sync(ctx context.Context) error
	Entities() []domain.Entity
	FindByName(name string) (*domain.Entity, bool)
	Summary() string
}
