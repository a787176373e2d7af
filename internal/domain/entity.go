package domain

import "strings"

// Entity is a Home Assistant entity as seen by the assistant.
type Entity struct {
	ID        string
	Name      string
	Domain    string
	State     string
	Available bool
}

// EntityDomain extracts the domain part of an entity ID
// (e.g. "light.living_room" -> "light").
func EntityDomain(entityID string) string {
	parts := strings.SplitN(entityID, ".", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}
