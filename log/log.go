package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger = zerolog.Nop()
	diagFile *os.File
	moodFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: MOODMIC_LOG_PATH environment variable
	if envPath := os.Getenv("MOODMIC_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// Init opens the diagnostics and mood logs in Dir. level is a zerolog level
// name; unknown names fall back to info.
func Init(level string) error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, "diagnostics_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	moodFile, err = os.OpenFile(filepath.Join(dir, "moods_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(lvl).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if moodFile != nil {
		moodFile.Close()
		moodFile = nil
	}
	diagLog = zerolog.Nop()
	logReady = false
}

// Component returns a child logger tagged with the component name. Before
// Init it discards everything.
func Component(name string) zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	return diagLog.With().Str("component", name).Logger()
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(sessionID, provider, lang string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Str("provider", provider).
		Str("lang", lang).
		Msg("session_start")
}

func SessionEnd(sessionID string, count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Int("count", count).
		Msg("session_end")
}

func SentimentRequest(seq int, chars int, dur time.Duration, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Int("seq", seq).
		Int("chars", chars).
		Float64("total_ms", float64(dur.Milliseconds())).
		Msg("sentiment_request")
}

// Mood appends one resolved mood to moods_log.txt.
func Mood(emotion, label string, score float64, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\t%.4f\t%s\n",
		time.Now().Format("2006-01-02 15:04:05"), pid, emotion, label, score, text)
	moodFile.WriteString(line)
}

type StreamMetricsData struct {
	Provider     string
	ConnectMs    float64
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	CommitEvents int
}

func StreamMetrics(m StreamMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", m.Provider).
		Float64("connect_ms", m.ConnectMs).
		Float64("finalize_ms", m.FinalizeMs).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_final", m.RecvFinal).
		Int("commit_events", m.CommitEvents).
		Msg("stream_transcription")
}

type BatchMetricsData struct {
	Provider         string
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	EncodeTimeMs     float64
	TTFBMs           float64
	TotalTimeMs      float64
	ConnReused       bool
}

func BatchMetrics(m BatchMetricsData) {
	if !logReady {
		return
	}
	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}
	diagLog.Info().
		Str("provider", m.Provider).
		Str("conn", connStatus).
		Float64("audio_s", m.AudioLengthS).
		Float64("raw_kb", m.RawSizeKB).
		Float64("compressed_kb", m.CompressedSizeKB).
		Float64("encode_ms", m.EncodeTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("batch_transcription")
}
