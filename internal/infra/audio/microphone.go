//go:build portaudio
// +build portaudio

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// MicrophoneSource captures utterances from the default input device. An
// utterance starts when the level crosses the silence threshold and ends
// after a second of trailing silence (or the hard cap).
type MicrophoneSource struct {
	stream      *portaudio.Stream
	sampleRate  int
	phraseLimit int // seconds, hard cap per utterance
	logger      *slog.Logger
	buffer      []int16
}

func NewMicrophoneSource(sampleRate, phraseLimitSeconds int, logger *slog.Logger) *MicrophoneSource {
	if phraseLimitSeconds <= 0 {
		phraseLimitSeconds = 10
	}
	return &MicrophoneSource{
		sampleRate:  sampleRate,
		phraseLimit: phraseLimitSeconds,
		logger:      logger,
		buffer:      make([]int16, 1024),
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(m.buffer), m.buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}

	m.stream = stream

	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	m.logger.Info("microphone started", "sampleRate", m.sampleRate)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
	}
	portaudio.Terminate()
	return nil
}

func (m *MicrophoneSource) NextCommand(ctx context.Context) ([]byte, error) {
	const silenceThreshold = int16(500)

	samples := make([]int16, 0, m.sampleRate*5)
	silenceFrames := 0
	maxSilenceFrames := m.sampleRate // one second of silence ends the utterance
	started := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}

		loud := false
		for _, sample := range m.buffer {
			if sample > silenceThreshold || sample < -silenceThreshold {
				loud = true
				break
			}
		}

		if !started {
			if !loud {
				continue
			}
			started = true
		}

		chunk := make([]int16, len(m.buffer))
		copy(chunk, m.buffer)
		samples = append(samples, chunk...)

		if loud {
			silenceFrames = 0
		} else {
			silenceFrames += len(m.buffer)
		}

		if silenceFrames > maxSilenceFrames && len(samples) > m.sampleRate {
			break
		}

		if len(samples) > m.sampleRate*m.phraseLimit {
			break
		}
	}

	return encodeWAV(samples, m.sampleRate)
}

func encodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer

	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	for _, sample := range samples {
		binary.Write(&buf, binary.LittleEndian, sample)
	}

	return buf.Bytes(), nil
}
