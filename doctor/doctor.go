package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"moodmic/audio"
	"moodmic/hotkey"
	"moodmic/transcriber"
)

// Check is one diagnostic step. Run returns a short detail on success.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Run executes checks in order and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "moodmic doctor - system diagnostics")
	fmt.Fprintln(w, "===================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		detail, err := c.Run(ctx)
		if err != nil {
			failed++
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", detail)
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintf(w, "%d check(s) failed. See details above.\n", failed)
	return 1
}

func HotkeyCheck() Check {
	return Check{Name: "Global hotkey", Run: func(context.Context) (string, error) {
		return hotkey.Diagnose()
	}}
}

// MicCheck records for d and reports the peak level. A silent device is a
// failure since nothing would ever be transcribed.
func MicCheck(ac audio.Context, device *audio.DeviceInfo, d time.Duration) Check {
	return Check{Name: "Microphone", Run: func(ctx context.Context) (string, error) {
		pcm, name, err := recordAudio(ctx, ac, device, d)
		if err != nil {
			return "", err
		}
		if len(pcm) == 0 {
			return "", errors.New("no audio captured")
		}
		peak := peakLevel(pcm)
		if peak < 0.01 {
			return "", fmt.Errorf("%s delivered only silence (peak level %.3f)", name, peak)
		}
		return fmt.Sprintf("%s, %.1f KB captured, peak level %.2f", name, float64(len(pcm))/1024, peak), nil
	}}
}

func RecognizerCheck(t transcriber.Transcriber, err error) Check {
	return Check{Name: "Speech recognizer", Run: func(context.Context) (string, error) {
		if err != nil {
			return "", err
		}
		lang := t.GetLanguage()
		if lang == "" {
			lang = "auto"
		}
		return fmt.Sprintf("%s (%s)", t.Name(), lang), nil
	}}
}

// Analyzer is the sentiment call under test.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (label string, score float64, err error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, text string) (string, float64, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, text string) (string, float64, error) {
	return f(ctx, text)
}

func SentimentCheck(baseURL string, a Analyzer) Check {
	return Check{Name: "Sentiment endpoint", Run: func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		start := time.Now()
		label, score, err := a.Analyze(ctx, "I am glad this works")
		if err != nil {
			return "", fmt.Errorf("%s: %w", baseURL, err)
		}
		return fmt.Sprintf("%s answered %q %.2f in %dms", baseURL, label, score, time.Since(start).Milliseconds()), nil
	}}
}

func ClipboardCheck() Check {
	return Check{Name: "Clipboard", Run: func(context.Context) (string, error) {
		if cb.Unsupported {
			return "", errors.New("no clipboard tool found (install xclip, xsel or wl-clipboard)")
		}
		return "available", nil
	}}
}

func recordAudio(ctx context.Context, ac audio.Context, device *audio.DeviceInfo, d time.Duration) ([]byte, string, error) {
	var pcmBuf []byte
	var bufMu sync.Mutex
	var stopped bool

	config := audio.DefaultConfig
	captureDevice, err := ac.NewCapture(device, config)
	if err != nil {
		return nil, "", err
	}
	defer captureDevice.Close()

	captureDevice.SetCallback(func(data []byte, _ uint32) {
		bufMu.Lock()
		defer bufMu.Unlock()
		if !stopped {
			pcmBuf = append(pcmBuf, data...)
		}
	})
	if err := captureDevice.Start(); err != nil {
		return nil, "", err
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	captureDevice.Stop()
	captureDevice.ClearCallback()

	bufMu.Lock()
	stopped = true
	raw := pcmBuf
	bufMu.Unlock()
	return raw, strings.TrimSpace(captureDevice.DeviceName()), ctx.Err()
}

// peakLevel is the loudest 20ms window.
func peakLevel(pcm []byte) float64 {
	const window = audio.SampleRate / 50 * audio.BytesPerSample
	peak := 0.0
	for i := 0; i < len(pcm); i += window {
		end := min(i+window, len(pcm))
		peak = max(peak, audio.Level(pcm[i:end]))
	}
	return peak
}
