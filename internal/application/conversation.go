package application

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"aural/internal/domain"
)

// DefaultHistoryFile is where conversations are saved when no name is given.
const DefaultHistoryFile = "conversation_history.json"

// Conversation holds the running message history shared between the voice
// pipeline and the web panel. The system prompt always stays at index 0.
type Conversation struct {
	mu           sync.Mutex
	systemPrompt string
	messages     []domain.Message
}

func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		systemPrompt: systemPrompt,
		messages: []domain.Message{
			{Role: domain.RoleSystem, Content: systemPrompt},
		},
	}
}

func (c *Conversation) Append(role domain.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, domain.Message{Role: role, Content: content})
}

// Messages returns a copy of the full history including the system prompt.
func (c *Conversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Clear drops the history but keeps the system prompt.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = []domain.Message{
		{Role: domain.RoleSystem, Content: c.systemPrompt},
	}
}

func (c *Conversation) Save(path string) error {
	if path == "" {
		path = DefaultHistoryFile
	}

	data, err := json.MarshalIndent(c.Messages(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

func (c *Conversation) Load(path string) error {
	if path == "" {
		path = DefaultHistoryFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("parsing history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(messages) == 0 || messages[0].Role != domain.RoleSystem {
		messages = append([]domain.Message{
			{Role: domain.RoleSystem, Content: c.systemPrompt},
		}, messages...)
	}
	c.messages = messages
	return nil
}
