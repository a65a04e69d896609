// Package config loads moodmic settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Sentiment SentimentConfig `yaml:"sentiment"`
	Speech    SpeechConfig    `yaml:"speech"`
	Deepgram  DeepgramConfig  `yaml:"deepgram"`
	Groq      GroqConfig      `yaml:"groq"`
	Google    GoogleConfig    `yaml:"google"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
}

type SentimentConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type SpeechConfig struct {
	Provider    string        `yaml:"provider"` // deepgram, google, groq, fake; empty picks the first configured
	Language    string        `yaml:"language"`
	Device      string        `yaml:"device"`
	AutoStop    *bool         `yaml:"auto_stop"`
	SilenceWarn time.Duration `yaml:"silence_warn"`
	SilenceStop time.Duration `yaml:"silence_stop"`
}

type DeepgramConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GroqConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the HTTP server
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultSentimentURL is used when neither the file nor MOODMIC_SENTIMENT_URL set one.
const DefaultSentimentURL = "http://127.0.0.1:8000"

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "moodmic"), nil
}

// DefaultPath returns <config dir>/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path, expands ${VAR} references and fills defaults. A missing
// file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Sentiment.BaseURL == "" {
		c.Sentiment.BaseURL = envOrDefault("MOODMIC_SENTIMENT_URL", DefaultSentimentURL)
	}
	if c.Sentiment.Timeout <= 0 {
		c.Sentiment.Timeout = 10 * time.Second
	}
	if c.Sentiment.MaxAttempts <= 0 {
		c.Sentiment.MaxAttempts = 2
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "en"
	}
	if c.Speech.AutoStop == nil {
		on := true
		c.Speech.AutoStop = &on
	}
	if c.Speech.SilenceWarn <= 0 {
		c.Speech.SilenceWarn = 4 * time.Second
	}
	if c.Speech.SilenceStop <= 0 {
		c.Speech.SilenceStop = 8 * time.Second
	}
	if c.Deepgram.APIKey == "" {
		c.Deepgram.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if c.Groq.APIKey == "" {
		c.Groq.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "moodmic.moods"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
