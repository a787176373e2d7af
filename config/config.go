package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Speech        SpeechConfig        `yaml:"speech"`
	STT           STTConfig           `yaml:"stt"`
	TTS           TTSConfig           `yaml:"tts"`
	Models        map[string]Model    `yaml:"models"`
	Hotwords      map[string][]string `yaml:"hotwords"`
	DefaultModel  string              `yaml:"default_model"`
	Translation   TranslationConfig   `yaml:"translation"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	Weather       WeatherConfig       `yaml:"weather"`
	Research      ResearchConfig      `yaml:"research"`
	Store         StoreConfig         `yaml:"store"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Web           WebConfig           `yaml:"web"`
	Control       ControlConfig       `yaml:"control"`
	Log           LogConfig           `yaml:"log"`
}

type AudioConfig struct {
	Source     string `yaml:"source"` // http, file or microphone
	HTTPAddr   string `yaml:"http_addr"`
	FileDir    string `yaml:"file_dir"`
	SampleRate int    `yaml:"sample_rate"`
	AuthToken  string `yaml:"auth_token"`
}

type SpeechConfig struct {
	TimeoutSeconds     int `yaml:"timeout_seconds"`
	PhraseLimitSeconds int `yaml:"phrase_limit_seconds"`
}

type STTConfig struct {
	Engine   string `yaml:"engine"` // google or whisper
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type TTSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// Model describes one Ollama model the assistant can talk to.
type Model struct {
	Name           string `yaml:"name"`
	BaseURL        string `yaml:"base_url"`
	FallbackURL    string `yaml:"fallback_url"`
	CleanupPattern string `yaml:"cleanup_pattern"`
}

type TranslationConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Languages []string `yaml:"languages"`
}

type HomeAssistantConfig struct {
	URL           string            `yaml:"url"`
	Token         string            `yaml:"token"`
	SyncInterval  string            `yaml:"sync_interval"`
	EntityAliases map[string]string `yaml:"entity_aliases"`
	WeatherEntity string            `yaml:"weather_entity"`
}

type WeatherConfig struct {
	Unit            string `yaml:"unit"` // imperial or metric
	DefaultLocation string `yaml:"default_location"`
}

type ResearchConfig struct {
	NewsAPIKey string `yaml:"newsapi_key"`
	MaxResults int    `yaml:"max_results"`
	ExportDir  string `yaml:"export_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type WebConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

type ControlConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json or tint
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Audio.Source == "" {
		c.Audio.Source = "http"
	}
	if c.Audio.HTTPAddr == "" {
		c.Audio.HTTPAddr = ":8080"
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./audio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Speech.TimeoutSeconds == 0 {
		c.Speech.TimeoutSeconds = 10
	}
	if c.Speech.PhraseLimitSeconds == 0 {
		c.Speech.PhraseLimitSeconds = 20
	}
	if c.STT.Engine == "" {
		c.STT.Engine = "google"
	}
	if c.STT.Language == "" {
		c.STT.Language = "en-US"
	}
	if c.TTS.Language == "" {
		c.TTS.Language = "en"
	}
	if len(c.Models) == 0 {
		c.Models = map[string]Model{
			"llama":    {Name: "llama3.2"},
			"dolphin":  {Name: "dolphin-mistral"},
			"deepseek": {Name: "deepseek-r1:14b", CleanupPattern: `(?s)<think>.*?</think>`},
		}
	}
	for key, m := range c.Models {
		if m.BaseURL == "" {
			m.BaseURL = "http://localhost:11434"
		}
		c.Models[key] = m
	}
	if len(c.Hotwords) == 0 {
		c.Hotwords = map[string][]string{
			"llama":    {"hey llama", "llama", "llama are you there"},
			"dolphin":  {"hey dolphin", "dolphin", "dolphin are you there"},
			"deepseek": {"hey deepseek", "deepseek", "deepseek are you there", "deep"},
		}
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "llama"
	}
	if c.HomeAssistant.URL == "" {
		c.HomeAssistant.URL = "http://localhost:8123"
	}
	if c.HomeAssistant.SyncInterval == "" {
		c.HomeAssistant.SyncInterval = "5m"
	}
	if len(c.HomeAssistant.EntityAliases) == 0 {
		c.HomeAssistant.EntityAliases = map[string]string{
			"light": "light.living_room",
			"fan":   "fan.ceiling_fan",
		}
	}
	if c.Weather.Unit == "" {
		c.Weather.Unit = "imperial"
	}
	if c.Research.MaxResults == 0 {
		c.Research.MaxResults = 5
	}
	if c.Research.ExportDir == "" {
		c.Research.ExportDir = "."
	}
	if c.Store.Path == "" {
		c.Store.Path = "./aural.db"
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8090"
	}
	if c.Control.SocketPath == "" {
		c.Control.SocketPath = "/tmp/aural.sock"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
