package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"moodmic/config"
)

// ErrNoProvider is returned by New when no recognizer is configured.
var ErrNoProvider = errors.New("no speech provider configured: set DEEPGRAM_API_KEY, GROQ_API_KEY or GOOGLE_APPLICATION_CREDENTIALS")

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// Result is what a batch upload returns.
type Result struct {
	Text       string
	Metrics    *NetworkMetrics
	RateLimit  string
	Confidence float64
	Duration   float64
}

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

type baseTranscriber struct {
	lang string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// New builds the recognizer named by cfg.Speech.Provider. With no provider
// named, the first one that has credentials wins: deepgram, google, groq.
func New(ctx context.Context, cfg *config.Config) (Transcriber, error) {
	var t Transcriber
	switch cfg.Speech.Provider {
	case "deepgram":
		if cfg.Deepgram.APIKey == "" {
			return nil, fmt.Errorf("deepgram: missing api key")
		}
		t = NewDeepgram(cfg.Deepgram.APIKey, cfg.Deepgram.Model, cfg.Deepgram.BaseURL)
	case "google":
		g, err := NewGoogle(ctx, cfg.Google.CredentialsFile)
		if err != nil {
			return nil, err
		}
		t = g
	case "groq":
		if cfg.Groq.APIKey == "" {
			return nil, fmt.Errorf("groq: missing api key")
		}
		t = NewGroq(cfg.Groq.APIKey, cfg.Groq.Model, cfg.Groq.BaseURL)
	case "":
		switch {
		case cfg.Deepgram.APIKey != "":
			t = NewDeepgram(cfg.Deepgram.APIKey, cfg.Deepgram.Model, cfg.Deepgram.BaseURL)
		case cfg.Google.CredentialsFile != "":
			g, err := NewGoogle(ctx, cfg.Google.CredentialsFile)
			if err != nil {
				return nil, err
			}
			t = g
		case cfg.Groq.APIKey != "":
			t = NewGroq(cfg.Groq.APIKey, cfg.Groq.Model, cfg.Groq.BaseURL)
		default:
			return nil, ErrNoProvider
		}
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Speech.Provider)
	}
	t.SetLanguage(cfg.Speech.Language)
	return t, nil
}
