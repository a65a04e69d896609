package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

const DefaultCombo = "ctrl+shift+m"

// Combo is a key chord. Only Ctrl and Shift are supported as modifiers since
// they exist on every platform.
type Combo struct {
	Ctrl  bool
	Shift bool
	Key   rune // 'a'..'z' or ' '
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if c.Shift {
		parts = append(parts, "Shift")
	}
	if c.Key == ' ' {
		parts = append(parts, "Space")
	} else {
		parts = append(parts, strings.ToUpper(string(c.Key)))
	}
	return strings.Join(parts, "+")
}

// ParseCombo reads chords like "ctrl+shift+m" or "ctrl+space".
func ParseCombo(s string) (Combo, error) {
	var c Combo
	fields := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, f := range fields {
		f = strings.TrimSpace(f)
		last := i == len(fields)-1
		switch {
		case f == "ctrl" && !last:
			c.Ctrl = true
		case f == "shift" && !last:
			c.Shift = true
		case f == "space" && last:
			c.Key = ' '
		case len(f) == 1 && f[0] >= 'a' && f[0] <= 'z' && last:
			c.Key = rune(f[0])
		default:
			return Combo{}, fmt.Errorf("invalid hotkey %q: unsupported part %q", s, f)
		}
	}
	if !c.Ctrl && !c.Shift {
		return Combo{}, fmt.Errorf("invalid hotkey %q: needs ctrl or shift", s)
	}
	return c, nil
}
