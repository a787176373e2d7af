package application_test

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"aural/internal/application"
	"aural/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockAudioSource feeds queued payloads, then blocks until the context ends.
type mockAudioSource struct {
	mu      sync.Mutex
	queue   [][]byte
	started bool
}

func (m *mockAudioSource) Name() string { return "mock" }

func (m *mockAudioSource) Start(context.Context) error {
	m.started = true
	return nil
}

func (m *mockAudioSource) Stop() error { return nil }

func (m *mockAudioSource) NextCommand(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		data := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return data, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func textCommand(text string) []byte {
	return []byte(domain.TextCommandPrefix + text)
}

type mockSTT struct {
	transcript string
}

func (m *mockSTT) Transcribe(context.Context, []byte) (string, error) {
	return m.transcript, nil
}

type mockChat struct {
	mu      sync.Mutex
	reply   string
	history [][]domain.Message
}

func (m *mockChat) Chat(_ context.Context, model string, messages []domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]domain.Message, len(messages))
	copy(copied, messages)
	m.history = append(m.history, copied)
	return m.reply, nil
}

type mockHome struct {
	mu     sync.Mutex
	calls  []string
	states []string
	state  string
	err    error
}

func (m *mockHome) CallService(_ context.Context, service, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, service+":"+entityID)
	return m.err
}

func (m *mockHome) State(_ context.Context, entityID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, entityID)
	if m.state == "" {
		return "on", nil
	}
	return m.state, nil
}

type mockSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (m *mockSpeaker) Speak(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, text)
	return nil
}

func (m *mockSpeaker) said() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.spoken))
	copy(out, m.spoken)
	return out
}

type mockWeather struct{}

func (mockWeather) Current(_ context.Context, location string) (domain.WeatherReport, error) {
	return domain.WeatherReport{Location: location, Temperature: 72, Unit: "Fahrenheit", Condition: "Sunny"}, nil
}

type mockResearch struct {
	results []domain.ResearchResult
}

func (m *mockResearch) Search(_ context.Context, query string) ([]domain.ResearchResult, error) {
	return m.results, nil
}

type mockStore struct {
	mu    sync.Mutex
	saved []domain.ResearchResult
}

func (m *mockStore) SaveResults(_ context.Context, results []domain.ResearchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, results...)
	return nil
}

func testDeps(audio *mockAudioSource) application.Deps {
	return application.Deps{
		Audio:    audio,
		Intents:  application.NewKeywordParser(map[string]string{"light": "light.living_room"}),
		Hotwords: application.NewHotwordRouter(map[string][]string{"llama": {"hey llama"}}, "llama"),
		Logger:   discardLogger(),
		Models: map[string]application.ModelSpec{
			"llama": {Name: "llama3.2"},
		},
		SpeechTimeout: 100 * time.Millisecond,
	}
}

func runAssistant(t *testing.T, assistant *application.Assistant) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		assistant.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("assistant did not stop")
		}
	})

	return cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestAssistant_TextCommand_Home(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{textCommand("turn on the light")}}
	home := &mockHome{}
	speaker := &mockSpeaker{}

	deps := testDeps(audio)
	deps.Home = home
	deps.Speaker = speaker

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool {
		home.mu.Lock()
		defer home.mu.Unlock()
		return len(home.calls) == 1
	})

	home.mu.Lock()
	call := home.calls[0]
	home.mu.Unlock()

	if call != "turn_on:light.living_room" {
		t.Errorf("home call: got %s", call)
	}

	waitFor(t, func() bool { return len(speaker.said()) == 1 })
	if said := speaker.said()[0]; !strings.Contains(said, "Turned on") {
		t.Errorf("spoken: got %q", said)
	}
}

func TestAssistant_TextCommand_Chat(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{textCommand("hey llama tell me a joke")}}
	chat := &mockChat{reply: "Why did the gopher cross the road?"}
	speaker := &mockSpeaker{}

	deps := testDeps(audio)
	deps.Chat = chat
	deps.Speaker = speaker

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool { return len(speaker.said()) == 1 })

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.history) != 1 {
		t.Fatalf("chat calls: got %d", len(chat.history))
	}

	messages := chat.history[0]
	last := messages[len(messages)-1]
	if last.Role != domain.RoleUser || last.Content != "tell me a joke" {
		t.Errorf("user message: got %+v (hotword should be stripped)", last)
	}

	history := assistant.History()
	if history[len(history)-1].Content != "Why did the gopher cross the road?" {
		t.Errorf("history: reply not recorded: %+v", history)
	}
}

func TestAssistant_SpokenCommand_RequiresHotword(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{[]byte("pcm-audio")}}
	chat := &mockChat{reply: "hello"}

	deps := testDeps(audio)
	deps.STT = &mockSTT{transcript: "just some background noise"}
	deps.Chat = chat

	assistant := application.NewAssistant(deps)
	cancel := runAssistant(t, assistant)

	// Give the loop time to consume the utterance, then stop.
	time.Sleep(200 * time.Millisecond)
	cancel()

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.history) != 0 {
		t.Errorf("chat called without a hotword: %d calls", len(chat.history))
	}
}

func TestAssistant_SpokenCommand_WithHotword(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{[]byte("pcm-audio")}}
	chat := &mockChat{reply: "4"}

	deps := testDeps(audio)
	deps.STT = &mockSTT{transcript: "hey llama what is two plus two"}
	deps.Chat = chat

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool {
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return len(chat.history) == 1
	})
}

func TestAssistant_PausedDropsAudio(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{[]byte("pcm-audio")}}
	chat := &mockChat{reply: "hello"}

	deps := testDeps(audio)
	deps.STT = &mockSTT{transcript: "hey llama hello"}
	deps.Chat = chat

	assistant := application.NewAssistant(deps)
	assistant.Pause()
	cancel := runAssistant(t, assistant)

	time.Sleep(200 * time.Millisecond)
	cancel()

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.history) != 0 {
		t.Errorf("paused assistant processed audio: %d chat calls", len(chat.history))
	}
}

func TestAssistant_TextCommand_ExitPauses(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{textCommand("exit")}}

	assistant := application.NewAssistant(testDeps(audio))
	runAssistant(t, assistant)

	waitFor(t, func() bool { return assistant.State() == application.StatePaused })
}

func TestAssistant_Research_SavesToStore(t *testing.T) {
	results := []domain.ResearchResult{
		{Query: "go", Title: "Go", Source: "wikipedia"},
		{Query: "go", Title: "Go 1.23", Source: "newsapi"},
	}

	audio := &mockAudioSource{queue: [][]byte{textCommand("look up go")}}
	store := &mockStore{}
	speaker := &mockSpeaker{}

	deps := testDeps(audio)
	deps.Research = &mockResearch{results: results}
	deps.Store = store
	deps.Speaker = speaker

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.saved) == 2
	})

	waitFor(t, func() bool { return len(speaker.said()) == 1 })
	if said := speaker.said()[0]; !strings.Contains(said, "2 results") {
		t.Errorf("spoken: got %q", said)
	}
}

func TestAssistant_Weather(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{textCommand("what's the weather")}}
	speaker := &mockSpeaker{}

	deps := testDeps(audio)
	deps.Weather = mockWeather{}
	deps.WeatherLocation = "Seattle"
	deps.Speaker = speaker

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool { return len(speaker.said()) == 1 })
	said := speaker.said()[0]
	if !strings.Contains(said, "Seattle") || !strings.Contains(said, "72") {
		t.Errorf("spoken: got %q", said)
	}
}

type failingWeather struct{}

func (failingWeather) Current(context.Context, string) (domain.WeatherReport, error) {
	return domain.WeatherReport{}, context.DeadlineExceeded
}

func TestAssistant_Weather_FallsBackToHomeEntity(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{textCommand("what's the weather")}}
	home := &mockHome{state: "partly-cloudy"}
	speaker := &mockSpeaker{}

	deps := testDeps(audio)
	deps.Weather = failingWeather{}
	deps.Home = home
	deps.WeatherEntity = "weather.home"
	deps.Speaker = speaker

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool { return len(speaker.said()) == 1 })
	if said := speaker.said()[0]; !strings.Contains(said, "partly cloudy") {
		t.Errorf("spoken: got %q", said)
	}

	home.mu.Lock()
	defer home.mu.Unlock()
	if len(home.states) != 1 || home.states[0] != "weather.home" {
		t.Errorf("state queries: got %v", home.states)
	}
}

func TestAssistant_Trigger_SkipsHotword(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{[]byte("pcm-audio")}}
	chat := &mockChat{reply: "it is noon"}

	deps := testDeps(audio)
	deps.STT = &mockSTT{transcript: "what time is it"}
	deps.Chat = chat

	assistant := application.NewAssistant(deps)
	assistant.Trigger()
	runAssistant(t, assistant)

	waitFor(t, func() bool {
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return len(chat.history) == 1
	})

	chat.mu.Lock()
	messages := chat.history[0]
	chat.mu.Unlock()
	last := messages[len(messages)-1]
	if last.Content != "what time is it" {
		t.Errorf("user message: got %+v", last)
	}
}

func TestAssistant_Trigger_IsOneShot(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{[]byte("pcm-one"), []byte("pcm-two")}}
	chat := &mockChat{reply: "ok"}

	deps := testDeps(audio)
	deps.STT = &mockSTT{transcript: "background chatter"}
	deps.Chat = chat

	assistant := application.NewAssistant(deps)
	assistant.Trigger()
	cancel := runAssistant(t, assistant)

	waitFor(t, func() bool {
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return len(chat.history) == 1
	})

	// The second utterance has no hotword; the armed trigger is spent.
	time.Sleep(200 * time.Millisecond)
	cancel()

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.history) != 1 {
		t.Errorf("chat calls: got %d, want 1", len(chat.history))
	}
}

func TestAssistant_ChatReply_TriggersHomeFollowUp(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{textCommand("hey llama please turn the light on")}}
	chat := &mockChat{reply: "Sure, I'll turn on the light for you."}
	home := &mockHome{}
	speaker := &mockSpeaker{}

	deps := testDeps(audio)
	deps.Chat = chat
	deps.Home = home
	deps.Speaker = speaker

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool {
		home.mu.Lock()
		defer home.mu.Unlock()
		return len(home.calls) == 1
	})

	home.mu.Lock()
	defer home.mu.Unlock()
	if home.calls[0] != "turn_on:light.living_room" {
		t.Errorf("follow-up call: got %s", home.calls[0])
	}
}

func TestAssistant_CleanupPattern_StripsReasoning(t *testing.T) {
	audio := &mockAudioSource{queue: [][]byte{textCommand("hey llama think hard")}}
	chat := &mockChat{reply: "<think>internal reasoning</think>The answer is 42."}
	speaker := &mockSpeaker{}

	deps := testDeps(audio)
	deps.Chat = chat
	deps.Speaker = speaker
	deps.Models = map[string]application.ModelSpec{
		"llama": {Name: "deepseek-r1:14b", Cleanup: mustCompile(t, `(?s)<think>.*?</think>`)},
	}

	assistant := application.NewAssistant(deps)
	runAssistant(t, assistant)

	waitFor(t, func() bool { return len(speaker.said()) == 1 })
	if said := speaker.said()[0]; said != "The answer is 42." {
		t.Errorf("spoken: got %q", said)
	}
}

func TestAssistant_ControlDevice_RejectsUnknownAction(t *testing.T) {
	audio := &mockAudioSource{}
	deps := testDeps(audio)
	deps.Home = &mockHome{}

	assistant := application.NewAssistant(deps)

	if err := assistant.ControlDevice(context.Background(), "light.living_room", "explode"); err == nil {
		t.Fatal("expected error for unsupported action")
	}
	if err := assistant.ControlDevice(context.Background(), "light.living_room", "turn_on"); err != nil {
		t.Fatalf("ControlDevice error: %v", err)
	}
}

func mustCompile(t *testing.T, pattern string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatalf("compiling %q: %v", pattern, err)
	}
	return re
}
