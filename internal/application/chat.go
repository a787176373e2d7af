package application

import (
	"context"

	"aural/internal/domain"
)

// ChatModel generates a reply for a conversation using a named model.
type ChatModel interface {
	Chat(ctx context.Context, model string, messages []domain.Message) (string, error)
}
