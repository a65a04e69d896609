//go:build !gui

package main

import (
	"context"
	"fmt"
	"os"
)

func (a *app) runGUI(_ context.Context, cancel context.CancelFunc) int {
	a.stop(cancel)
	fmt.Fprintln(os.Stderr, "moodmic: built without GUI support (rebuild with -tags gui)")
	return 1
}
