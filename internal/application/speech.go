package application

import (
	"context"
	"fmt"
)

type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// NoopSTT is a no-op speech-to-text client for text-only sources.
// It returns an error if called with actual audio data.
type NoopSTT struct{}

func (n *NoopSTT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", fmt.Errorf("speech-to-text not configured: set stt.api_key to enable audio transcription")
}

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// NoopSpeaker swallows speech output, used when TTS is disabled.
type NoopSpeaker struct{}

func (n *NoopSpeaker) Speak(_ context.Context, _ string) error {
	return nil
}
