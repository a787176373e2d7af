package player

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// BeepPlayer plays MP3 buffers through the default output device. Playback
// blocks until the clip finishes so replies never overlap.
type BeepPlayer struct {
	mu       sync.Mutex
	initOnce sync.Once
	initErr  error
	rate     beep.SampleRate
}

func New() *BeepPlayer {
	return &BeepPlayer{}
}

type nopCloserSeeker struct {
	*bytes.Reader
}

func (nopCloserSeeker) Close() error { return nil }

func (p *BeepPlayer) Play(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var rc io.ReadCloser = nopCloserSeeker{bytes.NewReader(data)}

	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		return fmt.Errorf("decoding mp3: %w", err)
	}
	defer streamer.Close()

	// The speaker can only be initialized once per process; later clips are
	// resampled to the first clip's rate.
	p.initOnce.Do(func() {
		p.rate = format.SampleRate
		p.initErr = speaker.Init(p.rate, p.rate.N(time.Second/10))
	})
	if p.initErr != nil {
		return fmt.Errorf("initializing speaker: %w", p.initErr)
	}

	var stream beep.Streamer = streamer
	if format.SampleRate != p.rate {
		stream = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))
	<-done

	return nil
}
