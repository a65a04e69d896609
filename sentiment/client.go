// Package sentiment talks to the remote sentiment-analysis service.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	predictPath    = "/predict"
	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// ErrRequestFailed is returned for every failed analysis: transport errors,
// non-2xx responses and undecodable bodies alike.
var ErrRequestFailed = errors.New("request failed")

// Request is the body posted to /predict.
type Request struct {
	Text string `json:"text"`
}

// Result is the label and score returned by the service. Score has no
// defined range.
type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type predictResponse struct {
	Result *Result `json:"result"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sentiment API error %d", e.Code)
	}
	return fmt.Sprintf("sentiment API error %d: %s", e.Code, e.Body)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "sentiment response parse error: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryConfig
}

type Option func(*Client)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithHTTPClient replaces the underlying client. Its Timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		retry: DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Analyze posts text to <base>/predict and decodes the nested result.
func (c *Client) Analyze(ctx context.Context, text string) (Result, error) {
	payload, err := json.Marshal(Request{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	var result Result
	err = withRetry(ctx, c.retry, func() error {
		r, err := c.predict(ctx, payload)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	return result, nil
}

func (c *Client) predict(ctx context.Context, payload []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return Result{}, &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	var pr predictResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return Result{}, &decodeError{err: err}
	}
	if pr.Result == nil {
		return Result{}, &decodeError{err: errors.New(`missing "result" object`)}
	}
	return *pr.Result, nil
}
