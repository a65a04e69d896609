package transcriber

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"moodmic/encoder"
)

const (
	deepgramBaseURL = "https://api.deepgram.com/v1"
	deepgramModel   = "nova-3"
)

type Deepgram struct {
	baseTranscriber
	apiKey  string
	model   string
	baseURL string
}

func NewDeepgram(apiKey, model, baseURL string) *Deepgram {
	if model == "" {
		model = deepgramModel
	}
	if baseURL == "" {
		baseURL = deepgramBaseURL
	}
	return &Deepgram{apiKey: apiKey, model: model, baseURL: baseURL}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	lang := cfg.Language
	if lang == "" {
		lang = d.lang
	}
	wsURL, err := d.listenURL(lang)
	if err != nil {
		return nil, err
	}
	return newStreamSession(d.Name(), func() (rawStreamSession, error) {
		return dialDeepgram(ctx, wsURL, d.apiKey)
	}), nil
}

// listenURL turns the REST base URL into the websocket listen endpoint.
func (d *Deepgram) listenURL(lang string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(d.baseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram base url: %w", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprint(encoder.SampleRate))
	q.Set("channels", fmt.Sprint(encoder.Channels))
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	if lang != "" {
		q.Set("language", lang)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
