package gtts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Player turns MP3 bytes into sound.
type Player interface {
	Play(mp3 []byte) error
}

// Speaker composes the TTS client with an MP3 player. Empty text is a no-op.
type Speaker struct {
	client *Client
	player Player
	logger *slog.Logger
}

func NewSpeaker(client *Client, player Player, logger *slog.Logger) *Speaker {
	return &Speaker{client: client, player: player, logger: logger}
}

func (s *Speaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("no text to speak")
		return nil
	}

	mp3, err := s.client.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesizing speech: %w", err)
	}

	if err := s.player.Play(mp3); err != nil {
		return fmt.Errorf("playing audio: %w", err)
	}

	return nil
}
