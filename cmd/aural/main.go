package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"aural/config"
	"aural/internal/application"
	"aural/internal/infra/audio"
	"aural/internal/infra/geo"
	"aural/internal/infra/googlespeech"
	"aural/internal/infra/gtts"
	"aural/internal/infra/homeassistant"
	"aural/internal/infra/ollama"
	"aural/internal/infra/openai"
	"aural/internal/infra/player"
	"aural/internal/infra/pushover"
	"aural/internal/infra/research"
	"aural/internal/infra/store"
	"aural/internal/infra/translate"
	"aural/internal/infra/weather"
	"aural/internal/ipc"
	"aural/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envFile := flag.String("env", "", "optional .env file to load before the config")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Warn("loading env file", "path", *envFile, "error", err)
		}
	} else {
		godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	hub := web.NewHub(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	logger := setupLogger(cfg.Log, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	audioSource := createAudioSource(cfg.Audio, cfg.Speech, logger)
	stt := createSTT(cfg.STT, logger)

	defaultModel, ok := cfg.Models[cfg.DefaultModel]
	if !ok {
		logger.Error("default model not configured", "model", cfg.DefaultModel)
		os.Exit(1)
	}
	chatClient := ollama.NewClient(defaultModel.BaseURL, defaultModel.FallbackURL)

	models := make(map[string]application.ModelSpec, len(cfg.Models))
	for key, m := range cfg.Models {
		spec := application.ModelSpec{Name: m.Name}
		if m.CleanupPattern != "" {
			re, err := regexp.Compile(m.CleanupPattern)
			if err != nil {
				logger.Warn("invalid cleanup pattern, ignoring", "model", key, "error", err)
			} else {
				spec.Cleanup = re
			}
		}
		models[key] = spec
	}

	hotwords := application.NewHotwordRouter(cfg.Hotwords, cfg.DefaultModel)
	if cfg.Translation.Enabled && len(cfg.Translation.Languages) > 0 {
		translator := translate.NewClient()
		hotwords.ExpandTranslations(ctx, translator, cfg.Translation.Languages, logger)
	}

	var speaker application.Speaker
	if cfg.TTS.Enabled {
		speaker = gtts.NewSpeaker(gtts.NewClient(cfg.TTS.Language), player.New(), logger)
	}

	var home application.HomeController
	var registry application.EntityRegistry
	if cfg.HomeAssistant.Token != "" {
		haClient := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token)
		haRegistry := homeassistant.NewRegistry(haClient, logger)

		syncInterval, err := time.ParseDuration(cfg.HomeAssistant.SyncInterval)
		if err != nil {
			logger.Warn("invalid sync interval, using default", "error", err, "value", cfg.HomeAssistant.SyncInterval)
			syncInterval = 5 * time.Minute
		}
		if syncInterval > 0 {
			haRegistry.StartPeriodicSync(ctx, syncInterval)
		}

		home = haClient
		registry = haRegistry
	} else {
		logger.Info("home assistant token not set, device control disabled")
	}

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = &application.NoopNotifier{}
	}

	var researchStore application.ResearchStore
	db, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.Error("opening research store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	researchStore = db

	assistant := application.NewAssistant(application.Deps{
		Audio:    audioSource,
		STT:      stt,
		Chat:     chatClient,
		Speaker:  speaker,
		Home:     home,
		Registry: registry,
		Weather:  weather.NewClient(cfg.Weather.Unit),
		Research: research.NewService(cfg.Research.NewsAPIKey, cfg.Research.MaxResults, logger),
		Store:    researchStore,
		Locator:  geo.NewClient(),
		Notifier: notifier,
		Intents:  application.NewKeywordParser(cfg.HomeAssistant.EntityAliases),
		Hotwords: hotwords,
		Events:   hub,
		Logger:   logger,

		Models:          models,
		WeatherLocation: cfg.Weather.DefaultLocation,
		WeatherEntity:   cfg.HomeAssistant.WeatherEntity,
		SpeechTimeout:   time.Duration(cfg.Speech.TimeoutSeconds) * time.Second,
	})

	if cfg.Web.Enabled {
		server := web.NewServer(cfg.Web.Addr, assistant, registry, hub, application.DefaultHistoryFile, cfg.Research.ExportDir, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("control panel server", "error", err)
			}
		}()
	}

	ipcServer, err := ipc.StartServer(ctx, cfg.Control.SocketPath, controlHandler(ctx, assistant, cancel), logger)
	if err != nil {
		logger.Error("starting control socket", "error", err)
		os.Exit(1)
	}
	defer ipcServer.Close()

	logger.Info("starting aural",
		"audio_source", cfg.Audio.Source,
		"stt_engine", cfg.STT.Engine,
		"default_model", cfg.DefaultModel,
	)

	if err := assistant.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("assistant error", "error", err)
		os.Exit(1)
	}
}

// controlHandler maps control socket commands onto the assistant.
func controlHandler(ctx context.Context, assistant *application.Assistant, shutdown context.CancelFunc) ipc.Handler {
	return func(msg ipc.ControlMessage) ipc.Reply {
		switch msg.Cmd {
		case "pause":
			assistant.Pause()
			return ipc.Reply{Status: "ok", Detail: "paused"}
		case "resume", "start":
			assistant.Resume()
			return ipc.Reply{Status: "ok", Detail: "listening"}
		case "stop":
			assistant.StopListening()
			return ipc.Reply{Status: "ok", Detail: "stopped"}
		case "trigger":
			assistant.Trigger()
			return ipc.Reply{Status: "ok", Detail: "armed, speak now"}
		case "status":
			status := assistant.Status()
			return ipc.Reply{Status: "ok", Detail: string(status.State)}
		case "say":
			if strings.TrimSpace(msg.Arg) == "" {
				return ipc.Reply{Status: "error", Detail: "say requires text"}
			}
			if err := assistant.HandleText(ctx, msg.Arg); err != nil {
				return ipc.Reply{Status: "error", Detail: err.Error()}
			}
			return ipc.Reply{Status: "ok"}
		case "clear":
			assistant.ClearHistory()
			return ipc.Reply{Status: "ok", Detail: "history cleared"}
		case "shutdown":
			shutdown()
			return ipc.Reply{Status: "ok", Detail: "shutting down"}
		default:
			return ipc.Reply{Status: "error", Detail: "unknown command: " + msg.Cmd}
		}
	}
}

func createAudioSource(cfg config.AudioConfig, speech config.SpeechConfig, logger *slog.Logger) application.AudioSource {
	switch cfg.Source {
	case "http":
		return audio.NewHTTPSource(cfg.HTTPAddr, cfg.AuthToken, logger)
	case "file":
		return audio.NewFileSource(cfg.FileDir)
	case "microphone":
		return audio.NewMicrophoneSource(cfg.SampleRate, speech.PhraseLimitSeconds, logger)
	default:
		logger.Warn("unknown audio source, using http", "source", cfg.Source)
		return audio.NewHTTPSource(cfg.HTTPAddr, cfg.AuthToken, logger)
	}
}

func createSTT(cfg config.STTConfig, logger *slog.Logger) application.SpeechToText {
	switch cfg.Engine {
	case "whisper":
		return openai.NewWhisperClient(cfg.APIKey, cfg.Language)
	case "google":
		return googlespeech.NewClient(cfg.APIKey, cfg.Language)
	default:
		logger.Warn("unknown stt engine, using google", "engine", cfg.Engine)
		return googlespeech.NewClient(cfg.APIKey, cfg.Language)
	}
}

func setupLogger(cfg config.LogConfig, hub *web.Hub) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "tint":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(web.NewLogHandler(handler, hub))
}
