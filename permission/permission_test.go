package permission

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileGateMissingFile(t *testing.T) {
	g, err := NewFileGate(filepath.Join(t.TempDir(), "permission.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if g.Status() != Undetermined {
		t.Errorf("Status() = %v, want undetermined", g.Status())
	}
}

func TestFileGatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "permission.yaml")
	g, err := NewFileGate(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Set(true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "microphone: granted") {
		t.Errorf("file = %q", data)
	}

	reloaded, err := NewFileGate(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status() != Granted {
		t.Errorf("reloaded Status() = %v, want granted", reloaded.Status())
	}

	if err := reloaded.Set(false); err != nil {
		t.Fatal(err)
	}
	again, _ := NewFileGate(path)
	if again.Status() != Denied {
		t.Errorf("Status() = %v, want denied", again.Status())
	}
}

func TestFileGateReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permission.yaml")
	g, _ := NewFileGate(path)
	g.Set(true)
	if err := g.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if g.Status() != Undetermined {
		t.Errorf("Status() = %v, want undetermined", g.Status())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("permission file still present: %v", err)
	}
	if err := g.Reset(); err != nil {
		t.Errorf("second Reset: %v", err)
	}
}

func TestFileGateBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permission.yaml")
	os.WriteFile(path, []byte("microphone: [\n"), 0644)
	if _, err := NewFileGate(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(Undetermined)
	s.Set(false)
	if s.Status() != Denied {
		t.Errorf("Status() = %v, want denied", s.Status())
	}
	s.Set(true)
	if s.Status() != Granted {
		t.Errorf("Status() = %v, want granted", s.Status())
	}
}
