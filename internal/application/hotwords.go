package application

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// HotwordRouter picks the model to use based on the wake phrase in a
// transcript. Phrases can be expanded with translations so the wake words
// work in more than one language.
type HotwordRouter struct {
	phrases      map[string][]string // model key -> phrases
	defaultModel string
}

func NewHotwordRouter(phrases map[string][]string, defaultModel string) *HotwordRouter {
	lowered := make(map[string][]string, len(phrases))
	for key, list := range phrases {
		for _, p := range list {
			lowered[key] = append(lowered[key], strings.ToLower(p))
		}
	}
	return &HotwordRouter{phrases: lowered, defaultModel: defaultModel}
}

// Match returns the model key whose hotword appears in the text. Longer
// phrases win so "hey deepseek" beats "deep".
func (r *HotwordRouter) Match(text string) (string, bool) {
	lower := strings.ToLower(text)

	bestKey := ""
	bestLen := 0
	for key, list := range r.phrases {
		for _, phrase := range list {
			if strings.Contains(lower, phrase) && len(phrase) > bestLen {
				bestKey = key
				bestLen = len(phrase)
			}
		}
	}

	if bestKey == "" {
		return "", false
	}
	return bestKey, true
}

// Strip removes the matched hotword from the text, leaving the command part.
// Lowercasing can change a rune's byte length, so offsets found in the
// lowered text are mapped back to the original per byte.
func (r *HotwordRouter) Strip(text string) string {
	lower, offsets := lowerWithOffsets(text)

	bestStart, bestLen := -1, 0
	for _, list := range r.phrases {
		for _, phrase := range list {
			if idx := strings.Index(lower, phrase); idx >= 0 && len(phrase) > bestLen {
				bestStart = idx
				bestLen = len(phrase)
			}
		}
	}

	if bestStart < 0 {
		return strings.TrimSpace(text)
	}

	prefix := strings.TrimSpace(text[:offsets[bestStart]])
	suffix := strings.TrimSpace(text[offsets[bestStart+bestLen]:])
	rest := strings.TrimSpace(prefix + " " + suffix)
	return strings.TrimSpace(strings.Trim(rest, ",."))
}

// lowerWithOffsets lowercases text rune by rune and records, for every byte
// of the result, the byte offset of the source rune in the original.
func lowerWithOffsets(text string) (string, []int) {
	var sb strings.Builder
	offsets := make([]int, 0, len(text)+1)

	for i, ru := range text {
		lr := unicode.ToLower(ru)
		for n := utf8.RuneLen(lr); n > 0; n-- {
			offsets = append(offsets, i)
		}
		sb.WriteRune(lr)
	}
	offsets = append(offsets, len(text))

	return sb.String(), offsets
}

func (r *HotwordRouter) DefaultModel() string {
	return r.defaultModel
}

// ExpandTranslations adds translated variants of every hotword so wake
// phrases are recognized in the configured extra languages. A failed
// translation is skipped; the original phrase still matches.
func (r *HotwordRouter) ExpandTranslations(ctx context.Context, tr Translator, languages []string, logger *slog.Logger) {
	cache := make(map[string]string)

	for key, list := range r.phrases {
		expanded := list
		for _, lang := range languages {
			for _, phrase := range list {
				cacheKey := lang + ":" + phrase
				if translated, ok := cache[cacheKey]; ok {
					expanded = append(expanded, translated)
					continue
				}

				translated, err := tr.Translate(ctx, phrase, lang)
				if err != nil {
					logger.Warn("translating hotword", "phrase", phrase, "lang", lang, "error", err)
					continue
				}

				translated = strings.ToLower(translated)
				cache[cacheKey] = translated
				expanded = append(expanded, translated)
			}
		}
		r.phrases[key] = expanded
	}
}
