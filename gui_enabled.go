//go:build gui

package main

import (
	"context"
	"fmt"
	"os"

	"moodmic/clipboard"
	"moodmic/gui"
	"moodmic/log"
)

// runGUI must be called on the main thread; it blocks in the window event
// loop. The global hotkey stays off here since the window owns that thread
// on macOS.
func (a *app) runGUI(ctx context.Context, cancel context.CancelFunc) int {
	a.start(ctx, false)

	w := gui.New(a.presenter, clipboard.Copy)
	go func() {
		<-ctx.Done()
		w.Quit()
	}()
	err := w.Run(ctx, a.modeLine())
	a.stop(cancel)
	if err != nil {
		log.Errorf("gui error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
