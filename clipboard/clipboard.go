package clipboard

import (
	"errors"
	"fmt"
	"strings"

	cb "github.com/atotto/clipboard"
)

var ErrEmpty = errors.New("nothing to copy")

// Copy puts text on the system clipboard. On linux this shells out to
// xclip, xsel or wl-copy, whichever is installed.
func Copy(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	if cb.Unsupported {
		return errors.New("clipboard unsupported: install xclip, xsel or wl-clipboard")
	}
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	return nil
}

func Read() (string, error) {
	return cb.ReadAll()
}
