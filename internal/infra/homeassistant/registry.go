package homeassistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"aural/internal/domain"
)

// Registry caches the entity list so voice commands can resolve spoken names
// without a round trip per utterance.
type Registry struct {
	client *Client
	logger *slog.Logger

	mu       sync.RWMutex
	entities []domain.Entity
	index    map[string]*domain.Entity
}

func NewRegistry(client *Client, logger *slog.Logger) *Registry {
	return &Registry{
		client: client,
		logger: logger,
		index:  make(map[string]*domain.Entity),
	}
}

func (r *Registry) Sync(ctx context.Context) error {
	r.logger.Info("syncing entities from Home Assistant")

	entities, err := r.client.States(ctx)
	if err != nil {
		return fmt.Errorf("fetching entities: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = entities

	r.index = make(map[string]*domain.Entity)
	for i := range r.entities {
		key := strings.ToLower(r.entities[i].Name)
		r.index[key] = &r.entities[i]
	}

	r.logger.Info("sync complete", "entities", len(r.entities))

	return nil
}

func (r *Registry) Entities() []domain.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Entity, len(r.entities))
	copy(result, r.entities)
	return result
}

func (r *Registry) FindByName(name string) (*domain.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(name))

	if e, ok := r.index[key]; ok {
		return e, true
	}

	for _, e := range r.entities {
		if strings.Contains(strings.ToLower(e.Name), key) {
			return &e, true
		}
	}

	return nil, false
}

func (r *Registry) Summary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder

	sb.WriteString("## Available devices:\n")
	for _, e := range r.entities {
		status := "unavailable"
		if e.Available {
			status = e.State
		}
		sb.WriteString(fmt.Sprintf("- %s (%s, state: %s)\n", e.Name, e.Domain, status))
	}

	return sb.String()
}

func (r *Registry) StartPeriodicSync(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Sync(ctx); err != nil {
					r.logger.Error("periodic sync failed", "error", err)
				}
			}
		}
	}()
}
