package domain

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation with a chat model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
