package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1"
	groqModel   = "whisper-large-v3-turbo"
)

// Groq uploads each utterance to the Whisper transcription endpoint.
type Groq struct {
	baseTranscriber
	apiKey string
	model  string
	apiURL string
	client *TracedClient
}

func NewGroq(apiKey, model, baseURL string) *Groq {
	if model == "" {
		model = groqModel
	}
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Groq{
		apiKey: apiKey,
		model:  model,
		apiURL: baseURL + "/audio/transcriptions",
		client: NewTracedClient(baseURL),
	}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	go g.client.Warm()
	lang := cfg.Language
	if lang == "" {
		lang = g.lang
	}
	return newBatchSession(ctx, g.Name(), func(ctx context.Context, flac []byte) (*Result, error) {
		return g.transcribe(ctx, flac, lang)
	}), nil
}

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

func (g *Groq) transcribe(ctx context.Context, audioData []byte, lang string) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, err
	}
	writer.WriteField("model", g.model)
	writer.WriteField("response_format", "verbose_json")
	if lang != "" {
		writer.WriteField("language", baseLanguage(lang))
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("groq request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      gResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
		Duration:  gResp.Duration,
	}, nil
}

// baseLanguage strips the region: Whisper takes ISO-639-1 codes only.
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return tag[:i]
	}
	return tag
}
