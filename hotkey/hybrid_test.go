package hotkey

import (
	"testing"
	"time"
)

func expectAction(t *testing.T, hy *Hybrid, want Action) {
	t.Helper()
	select {
	case got := <-hy.Actions():
		if got != want {
			t.Fatalf("action = %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func expectNoAction(t *testing.T, hy *Hybrid, d time.Duration) {
	t.Helper()
	select {
	case got := <-hy.Actions():
		t.Fatalf("unexpected action %v", got)
	case <-time.After(d):
	}
}

func TestHybridLongPress(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	hy := NewHybrid(fk, threshold)
	defer hy.Close()

	fk.SimKeydown()
	expectAction(t, hy, ActionStart)

	time.Sleep(threshold + 30*time.Millisecond)
	if hy.IsToggle() {
		t.Error("expected push-to-talk after long press")
	}
	fk.SimKeyup()
	expectAction(t, hy, ActionStop)
}

func TestHybridShortTap(t *testing.T) {
	fk := NewFake()
	hy := NewHybrid(fk, 200*time.Millisecond)
	defer hy.Close()

	fk.SimKeydown()
	expectAction(t, hy, ActionStart)
	fk.SimKeyup()
	time.Sleep(20 * time.Millisecond)
	if !hy.IsToggle() {
		t.Error("expected toggle mode after short tap")
	}
	expectNoAction(t, hy, 50*time.Millisecond)

	fk.SimKeydown()
	fk.SimKeyup()
	expectAction(t, hy, ActionStop)
	if hy.IsToggle() {
		t.Error("toggle should clear after stop")
	}
}

func TestHybridMultipleCycles(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	hy := NewHybrid(fk, threshold)
	defer hy.Close()

	fk.SimKeydown()
	expectAction(t, hy, ActionStart)
	time.Sleep(threshold + 30*time.Millisecond)
	fk.SimKeyup()
	expectAction(t, hy, ActionStop)

	fk.SimKeydown()
	expectAction(t, hy, ActionStart)
	fk.SimKeyup()
	time.Sleep(10 * time.Millisecond)
	fk.SimKeydown()
	fk.SimKeyup()
	expectAction(t, hy, ActionStop)
}

func TestHybridCloseStopsLoop(t *testing.T) {
	fk := NewFake()
	hy := NewHybrid(fk, 50*time.Millisecond)
	hy.Close()
	hy.Close()

	fk.SimKeydown()
	expectNoAction(t, hy, 50*time.Millisecond)
}

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in      string
		want    Combo
		wantErr bool
	}{
		{"ctrl+shift+m", Combo{Ctrl: true, Shift: true, Key: 'm'}, false},
		{"Ctrl+Space", Combo{Ctrl: true, Key: ' '}, false},
		{" shift + k ", Combo{Shift: true, Key: 'k'}, false},
		{"m", Combo{}, true},
		{"ctrl+alt+m", Combo{}, true},
		{"ctrl+shift", Combo{}, true},
		{"ctrl+1", Combo{}, true},
	}
	for _, tt := range tests {
		got, err := ParseCombo(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCombo(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCombo(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCombo(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestComboString(t *testing.T) {
	c, _ := ParseCombo(DefaultCombo)
	if got := c.String(); got != "Ctrl+Shift+M" {
		t.Errorf("String() = %q", got)
	}
}
