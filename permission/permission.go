// Package permission records whether the user allowed microphone capture.
package permission

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type Status int

const (
	Undetermined Status = iota
	Granted
	Denied
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "undetermined"
	}
}

func parseStatus(s string) Status {
	switch s {
	case "granted":
		return Granted
	case "denied":
		return Denied
	default:
		return Undetermined
	}
}

// Gate answers whether capture may start and records the user's answer.
type Gate interface {
	Status() Status
	Set(granted bool) error
}

type fileState struct {
	Microphone string `yaml:"microphone"`
}

// FileGate persists the decision in a small YAML file so the user is asked once.
type FileGate struct {
	path string

	mu     sync.Mutex
	status Status
}

// NewFileGate loads the decision stored at path. A missing file means Undetermined.
func NewFileGate(path string) (*FileGate, error) {
	g := &FileGate{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading permission file: %w", err)
	}
	var st fileState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing permission file: %w", err)
	}
	g.status = parseStatus(st.Microphone)
	return g, nil
}

func (g *FileGate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *FileGate) Set(granted bool) error {
	status := Denied
	if granted {
		status = Granted
	}

	g.mu.Lock()
	g.status = status
	g.mu.Unlock()

	data, err := yaml.Marshal(fileState{Microphone: status.String()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("creating permission dir: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0644); err != nil {
		return fmt.Errorf("writing permission file: %w", err)
	}
	return nil
}

// Reset forgets the stored decision.
func (g *FileGate) Reset() error {
	g.mu.Lock()
	g.status = Undetermined
	g.mu.Unlock()
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Static is an in-memory gate.
type Static struct {
	mu     sync.Mutex
	status Status
}

func NewStatic(s Status) *Static { return &Static{status: s} }

func (s *Static) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Static) Set(granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if granted {
		s.status = Granted
	} else {
		s.status = Denied
	}
	return nil
}
