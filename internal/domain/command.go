package domain

type Action string

const (
	ActionTurnOn   Action = "turn_on"
	ActionTurnOff  Action = "turn_off"
	ActionToggle   Action = "toggle"
	ActionWeather  Action = "weather"
	ActionResearch Action = "research"
	ActionChat     Action = "chat"
	ActionUnknown  Action = "unknown"
)

// TextCommandPrefix is the marker used to indicate text commands (vs audio)
const TextCommandPrefix = "__TEXT__:"

// Command is the result of keyword intent parsing on a transcript.
type Command struct {
	Action   Action
	EntityID string
	Query    string
	RawText  string
}

// IsHomeAction reports whether the command maps to a Home Assistant service call.
func (c *Command) IsHomeAction() bool {
	switch c.Action {
	case ActionTurnOn, ActionTurnOff, ActionToggle:
		return true
	}
	return false
}
