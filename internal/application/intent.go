package application

import (
	"strings"

	"aural/internal/domain"
)

// KeywordParser maps transcripts to commands with plain substring matching.
// Anything that doesn't look like a home automation, weather or research
// request falls through to the chat model.
type KeywordParser struct {
	aliases map[string]string // spoken name -> entity ID
}

func NewKeywordParser(aliases map[string]string) *KeywordParser {
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &KeywordParser{aliases: aliases}
}

func (p *KeywordParser) Parse(text string) *domain.Command {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "turn on"):
		return &domain.Command{Action: domain.ActionTurnOn, EntityID: p.matchEntity(lower), RawText: text}
	case strings.Contains(lower, "turn off"):
		return &domain.Command{Action: domain.ActionTurnOff, EntityID: p.matchEntity(lower), RawText: text}
	case strings.Contains(lower, "toggle"):
		return &domain.Command{Action: domain.ActionToggle, EntityID: p.matchEntity(lower), RawText: text}
	case strings.Contains(lower, "weather"):
		return &domain.Command{Action: domain.ActionWeather, RawText: text}
	case strings.Contains(lower, "research") || strings.Contains(lower, "look up"):
		return &domain.Command{Action: domain.ActionResearch, Query: researchQuery(lower), RawText: text}
	case strings.TrimSpace(lower) == "":
		return &domain.Command{Action: domain.ActionUnknown, RawText: text}
	default:
		return &domain.Command{Action: domain.ActionChat, Query: text, RawText: text}
	}
}

func (p *KeywordParser) matchEntity(lower string) string {
	for spoken, entityID := range p.aliases {
		if strings.Contains(lower, spoken) {
			return entityID
		}
	}
	return ""
}

// researchQuery strips the trigger phrase so "look up quantum computing"
// searches for "quantum computing".
func researchQuery(lower string) string {
	for _, trigger := range []string{"research", "look up"} {
		if idx := strings.Index(lower, trigger); idx >= 0 {
			if q := strings.TrimSpace(lower[idx+len(trigger):]); q != "" {
				return q
			}
		}
	}
	return strings.TrimSpace(lower)
}
