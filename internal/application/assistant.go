package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"aural/internal/domain"
)

// DefaultSystemPrompt seeds every conversation.
const DefaultSystemPrompt = "You are Aural, an AI voice assistant. You are helpful, friendly, and concise. " +
	"You maintain context from previous messages and can engage in natural conversations."

type State string

const (
	StateListening State = "listening"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// ModelSpec is a resolved model entry: the Ollama model name plus the
// compiled cleanup pattern for reasoning tags, if any.
type ModelSpec struct {
	Name    string
	Cleanup *regexp.Regexp
}

// ResearchStore persists research results.
type ResearchStore interface {
	SaveResults(ctx context.Context, results []domain.ResearchResult) error
}

// EventSink receives assistant events (transcripts, replies, state changes)
// for the web panel.
type EventSink interface {
	Publish(event string, payload any)
}

type NoopSink struct{}

func (NoopSink) Publish(string, any) {}

// Deps bundles the assistant's collaborators. Audio, Intents, Hotwords and
// Logger are required; everything else degrades to a no-op or an error when
// the matching feature is invoked.
type Deps struct {
	Audio    AudioSource
	STT      SpeechToText
	Chat     ChatModel
	Speaker  Speaker
	Home     HomeController
	Registry EntityRegistry
	Weather  WeatherService
	Research ResearchService
	Store    ResearchStore
	Locator  Locator
	Notifier Notifier
	Intents  *KeywordParser
	Hotwords *HotwordRouter
	Events   EventSink
	Logger   *slog.Logger

	Models          map[string]ModelSpec
	WeatherLocation string
	WeatherEntity   string
	SpeechTimeout   time.Duration
}

type Assistant struct {
	deps Deps
	conv *Conversation

	mu        sync.Mutex
	state     State
	triggered bool
}

func NewAssistant(deps Deps) *Assistant {
	if deps.STT == nil {
		deps.STT = &NoopSTT{}
	}
	if deps.Speaker == nil {
		deps.Speaker = &NoopSpeaker{}
	}
	if deps.Notifier == nil {
		deps.Notifier = &NoopNotifier{}
	}
	if deps.Events == nil {
		deps.Events = NoopSink{}
	}
	if deps.SpeechTimeout == 0 {
		deps.SpeechTimeout = 10 * time.Second
	}

	return &Assistant{
		deps:  deps,
		conv:  NewConversation(DefaultSystemPrompt),
		state: StateListening,
	}
}

func (a *Assistant) Run(ctx context.Context) error {
	if a.deps.Registry != nil {
		a.deps.Logger.Info("syncing entity registry")
		if err := a.deps.Registry.Sync(ctx); err != nil {
			a.deps.Logger.Warn("initial registry sync failed", "error", err)
		}
	}

	a.deps.Logger.Info("starting audio source", "source", a.deps.Audio.Name())
	if err := a.deps.Audio.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer a.deps.Audio.Stop()

	a.deps.Logger.Info("assistant ready, listening for hotwords")
	a.deps.Events.Publish("state", a.Status())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := a.processOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.deps.Logger.Error("processing command", "error", err)
			}
		}
	}
}

func (a *Assistant) processOnce(ctx context.Context) error {
	data, err := a.deps.Audio.NextCommand(ctx)
	if err != nil {
		return fmt.Errorf("getting audio: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	// Text commands come from the panel's send box; they bypass hotword
	// detection and the pause state.
	if text, isText := isTextCommand(data); isText {
		a.deps.Logger.Info("received text command", "text", text)
		return a.HandleText(ctx, text)
	}

	if a.State() != StateListening {
		a.deps.Logger.Debug("paused, dropping audio", "bytes", len(data))
		return nil
	}

	a.deps.Logger.Info("received audio", "bytes", len(data))

	transcript, err := a.deps.STT.Transcribe(ctx, data)
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}

	a.deps.Logger.Info("transcribed", "text", transcript)
	a.deps.Events.Publish("transcript", transcript)

	// A one-shot trigger from the control socket handles the next utterance
	// as a command for the default model, no wake word needed.
	if a.consumeTrigger() {
		a.deps.Logger.Info("handling triggered utterance")
		return a.Execute(ctx, a.deps.Hotwords.DefaultModel(), transcript)
	}

	modelKey, ok := a.deps.Hotwords.Match(transcript)
	if !ok {
		a.deps.Logger.Debug("no hotword detected", "text", transcript)
		return nil
	}

	a.deps.Logger.Info("hotword detected", "model", modelKey)

	// The spoken command may ride along with the hotword ("hey llama turn on
	// the light"). If not, listen once more for the actual command.
	command := a.deps.Hotwords.Strip(transcript)
	if command == "" {
		command, err = a.listenForCommand(ctx)
		if err != nil {
			return fmt.Errorf("listening for command: %w", err)
		}
		if command == "" {
			a.deps.Logger.Warn("no speech detected within the timeout period")
			return nil
		}
	}

	return a.Execute(ctx, modelKey, command)
}

func (a *Assistant) listenForCommand(ctx context.Context) (string, error) {
	listenCtx, cancel := context.WithTimeout(ctx, a.deps.SpeechTimeout)
	defer cancel()

	data, err := a.deps.Audio.NextCommand(listenCtx)
	if err != nil {
		if listenCtx.Err() == context.DeadlineExceeded {
			return "", nil
		}
		return "", err
	}

	if text, isText := isTextCommand(data); isText {
		return text, nil
	}

	transcript, err := a.deps.STT.Transcribe(ctx, data)
	if err != nil {
		return "", fmt.Errorf("transcribing: %w", err)
	}

	a.deps.Events.Publish("transcript", transcript)
	return transcript, nil
}

// HandleText runs the full dispatch for a typed command. The hotword picks
// the model when present, otherwise the default model answers.
func (a *Assistant) HandleText(ctx context.Context, text string) error {
	if strings.TrimSpace(strings.ToLower(text)) == "exit" {
		a.Pause()
		return nil
	}

	modelKey, ok := a.deps.Hotwords.Match(text)
	command := text
	if ok {
		command = a.deps.Hotwords.Strip(text)
		if command == "" {
			command = text
		}
	} else {
		modelKey = a.deps.Hotwords.DefaultModel()
	}

	return a.Execute(ctx, modelKey, command)
}

// Execute dispatches one recognized command: keyword intents first, chat as
// the fallback.
func (a *Assistant) Execute(ctx context.Context, modelKey, text string) error {
	cmd := a.deps.Intents.Parse(text)

	a.deps.Logger.Info("parsed intent", "action", cmd.Action, "entity", cmd.EntityID)

	var result string
	var err error

	switch cmd.Action {
	case domain.ActionTurnOn, domain.ActionTurnOff, domain.ActionToggle:
		result, err = a.executeHome(ctx, cmd)
	case domain.ActionWeather:
		result, err = a.executeWeather(ctx)
	case domain.ActionResearch:
		result, err = a.executeResearch(ctx, cmd.Query)
	case domain.ActionChat:
		result, err = a.executeChat(ctx, modelKey, text)
	default:
		a.deps.Logger.Warn("unknown command, skipping", "text", text)
		return nil
	}

	if err != nil {
		if notifyErr := a.deps.Notifier.Notify(ctx, fmt.Sprintf("Error: %s", err.Error())); notifyErr != nil {
			a.deps.Logger.Error("notifying error", "error", notifyErr)
		}
		return err
	}

	if result != "" {
		if notifyErr := a.deps.Notifier.Notify(ctx, result); notifyErr != nil {
			a.deps.Logger.Error("notifying result", "error", notifyErr)
		}
	}

	return nil
}

func (a *Assistant) executeHome(ctx context.Context, cmd *domain.Command) (string, error) {
	if a.deps.Home == nil {
		return "", fmt.Errorf("home assistant not configured")
	}

	entityID := cmd.EntityID
	if entityID == "" {
		entityID = a.resolveEntity(strings.ToLower(cmd.RawText))
	}
	if entityID == "" {
		return "", fmt.Errorf("no entity found in command: %s", cmd.RawText)
	}

	if err := a.deps.Home.CallService(ctx, string(cmd.Action), entityID); err != nil {
		return "", fmt.Errorf("calling home assistant: %w", err)
	}

	result := fmt.Sprintf("%s %s", actionVerb(cmd.Action), entityID)
	a.deps.Logger.Info("home command executed", "action", cmd.Action, "entity", entityID)
	a.speak(ctx, result)
	return result, nil
}

// resolveEntity scans the synced registry for a friendly name mentioned in
// the transcript.
func (a *Assistant) resolveEntity(lower string) string {
	if a.deps.Registry == nil {
		return ""
	}
	for _, e := range a.deps.Registry.Entities() {
		if e.Name != "" && strings.Contains(lower, strings.ToLower(e.Name)) {
			return e.ID
		}
	}
	return ""
}

func (a *Assistant) executeWeather(ctx context.Context) (string, error) {
	if a.deps.Weather == nil {
		if spoken, err := a.weatherFromEntity(ctx); err == nil {
			return spoken, nil
		}
		return "", fmt.Errorf("weather service not configured")
	}

	location := a.deps.WeatherLocation
	if a.deps.Locator != nil {
		if loc, err := a.deps.Locator.Locate(ctx); err != nil {
			a.deps.Logger.Warn("geolocation failed, using default location", "error", err)
		} else if loc.City != "" {
			location = loc.City
		}
	}

	report, err := a.deps.Weather.Current(ctx, location)
	if err != nil {
		a.deps.Logger.Warn("weather lookup failed, trying home assistant entity", "error", err)
		if spoken, entityErr := a.weatherFromEntity(ctx); entityErr == nil {
			return spoken, nil
		}
		return "", fmt.Errorf("fetching weather: %w", err)
	}

	spoken := report.Spoken()
	a.deps.Events.Publish("weather", report)
	a.speak(ctx, spoken)
	return spoken, nil
}

// weatherFromEntity reads the configured Home Assistant weather entity, the
// fallback when the forecast service is unreachable.
func (a *Assistant) weatherFromEntity(ctx context.Context) (string, error) {
	if a.deps.Home == nil || a.deps.WeatherEntity == "" {
		return "", fmt.Errorf("no weather entity configured")
	}

	state, err := a.deps.Home.State(ctx, a.deps.WeatherEntity)
	if err != nil {
		return "", fmt.Errorf("reading weather entity: %w", err)
	}

	spoken := fmt.Sprintf("The weather right now is %s.", strings.ReplaceAll(state, "-", " "))
	a.speak(ctx, spoken)
	return spoken, nil
}

func (a *Assistant) executeResearch(ctx context.Context, query string) (string, error) {
	results, err := a.Research(ctx, query)
	if err != nil {
		return "", err
	}

	result := fmt.Sprintf("I found %d results for %s.", len(results), query)
	a.speak(ctx, result)
	return result, nil
}

// Research runs a search, persists the results, and returns them. The web
// panel calls this directly; spoken commands go through executeResearch.
func (a *Assistant) Research(ctx context.Context, query string) ([]domain.ResearchResult, error) {
	if a.deps.Research == nil {
		return nil, fmt.Errorf("research service not configured")
	}

	results, err := a.deps.Research.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	for _, r := range results {
		a.deps.Logger.Info("research result", "title", r.Title, "url", r.URL, "source", r.Source)
	}
	a.deps.Events.Publish("research", results)

	if a.deps.Store != nil {
		if err := a.deps.Store.SaveResults(ctx, results); err != nil {
			a.deps.Logger.Error("saving research results", "error", err)
		}
	}

	return results, nil
}

func (a *Assistant) executeChat(ctx context.Context, modelKey, text string) (string, error) {
	if a.deps.Chat == nil {
		return "", fmt.Errorf("chat model not configured")
	}

	spec, ok := a.deps.Models[modelKey]
	if !ok {
		return "", fmt.Errorf("unknown model key: %s", modelKey)
	}

	a.conv.Append(domain.RoleUser, text)

	reply, err := a.deps.Chat.Chat(ctx, spec.Name, a.conv.Messages())
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if spec.Cleanup != nil {
		reply = strings.TrimSpace(spec.Cleanup.ReplaceAllString(reply, ""))
	}

	a.conv.Append(domain.RoleAssistant, reply)
	a.deps.Logger.Info("model replied", "model", spec.Name, "chars", len(reply))
	a.deps.Events.Publish("reply", reply)

	a.speak(ctx, reply)

	// The model may phrase a home command in its reply ("I'll turn on the
	// light for you"); act on it so the device actually changes.
	followUp := a.deps.Intents.Parse(reply)
	if followUp.IsHomeAction() {
		if _, err := a.executeHome(ctx, followUp); err != nil {
			a.deps.Logger.Warn("home command from reply failed", "error", err)
		}
	}

	return reply, nil
}

func (a *Assistant) speak(ctx context.Context, text string) {
	if err := a.deps.Speaker.Speak(ctx, text); err != nil {
		a.deps.Logger.Error("speaking", "error", err)
	}
}

func actionVerb(action domain.Action) string {
	switch action {
	case domain.ActionTurnOn:
		return "Turned on"
	case domain.ActionTurnOff:
		return "Turned off"
	default:
		return "Toggled"
	}
}

func isTextCommand(data []byte) (string, bool) {
	if len(data) > len(domain.TextCommandPrefix) && string(data[:len(domain.TextCommandPrefix)]) == domain.TextCommandPrefix {
		return string(data[len(domain.TextCommandPrefix):]), true
	}
	return "", false
}

// --- listening state and web panel surface

func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assistant) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.deps.Logger.Info("listening state changed", "state", s)
	a.deps.Events.Publish("state", a.Status())
}

func (a *Assistant) Resume()        { a.setState(StateListening) }
func (a *Assistant) Pause()         { a.setState(StatePaused) }
func (a *Assistant) StopListening() { a.setState(StateStopped) }

// Trigger arms a one-shot capture: the next utterance is executed without a
// wake word. Listening resumes so the utterance can actually arrive.
func (a *Assistant) Trigger() {
	a.mu.Lock()
	a.triggered = true
	a.mu.Unlock()
	a.Resume()
}

func (a *Assistant) consumeTrigger() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := a.triggered
	a.triggered = false
	return t
}

// Status is a snapshot for the web panel and the status endpoint.
type Status struct {
	State       State  `json:"state"`
	AudioSource string `json:"audio_source"`
	Model       string `json:"default_model"`
	Messages    int    `json:"messages"`
}

func (a *Assistant) Status() Status {
	return Status{
		State:       a.State(),
		AudioSource: a.deps.Audio.Name(),
		Model:       a.deps.Hotwords.DefaultModel(),
		Messages:    len(a.conv.Messages()) - 1, // exclude system prompt
	}
}

func (a *Assistant) History() []domain.Message  { return a.conv.Messages() }
func (a *Assistant) ClearHistory()              { a.conv.Clear() }
func (a *Assistant) SaveHistory(p string) error { return a.conv.Save(p) }
func (a *Assistant) LoadHistory(p string) error { return a.conv.Load(p) }

// CheckWeather serves the web panel's weather button.
func (a *Assistant) CheckWeather(ctx context.Context) (string, error) {
	return a.executeWeather(ctx)
}

// ControlDevice serves the web panel's direct device buttons.
func (a *Assistant) ControlDevice(ctx context.Context, entityID, action string) error {
	switch domain.Action(action) {
	case domain.ActionTurnOn, domain.ActionTurnOff, domain.ActionToggle:
	default:
		return fmt.Errorf("unsupported action: %s", action)
	}

	if a.deps.Home == nil {
		return fmt.Errorf("home assistant not configured")
	}

	if err := a.deps.Home.CallService(ctx, action, entityID); err != nil {
		return fmt.Errorf("calling home assistant: %w", err)
	}

	a.deps.Logger.Info("device controlled", "entity", entityID, "action", action)
	return nil
}
