package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("MOODMIC_LOG_PATH", "/tmp/moodmic-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/moodmic-env-log" {
		t.Errorf("got %q, want /tmp/moodmic-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("MOODMIC_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "moodmic") {
		t.Errorf("default dir %q does not mention moodmic", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init("info"); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "moods_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestMood(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init("info"); err != nil {
		t.Fatal(err)
	}

	Mood("happy", "joy", 0.91, "what a day")

	data, err := os.ReadFile(filepath.Join(tmp, "moods_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, want := range []string{"happy", "joy", "0.9100", "what a day"} {
		if !strings.Contains(line, want) {
			t.Errorf("moods_log.txt missing %q, got: %q", want, line)
		}
	}
	if strings.Count(line, "\t") != 5 {
		t.Errorf("expected 6 tab-separated fields, got: %q", line)
	}
}

func TestDiagnosticsLevel(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init("warn"); err != nil {
		t.Fatal(err)
	}

	Info("should_not_appear")
	Warn("should_appear")
	SentimentRequest(3, 12, 40*time.Millisecond, errors.New("boom"))
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	diag := string(data)
	if strings.Contains(diag, "should_not_appear") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(diag, "should_appear") {
		t.Error("warn line missing")
	}
	if !strings.Contains(diag, "sentiment_request") || !strings.Contains(diag, "seq=3") {
		t.Errorf("sentiment_request entry missing: %q", diag)
	}
}

func TestLoggingBeforeInitIsNoop(t *testing.T) {
	Close()
	Info("nothing")
	Mood("happy", "joy", 1, "x")
	l := Component("test")
	l.Info().Msg("discarded")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init("info"); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
