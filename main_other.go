//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// The window toolkit needs the real main thread, so -gui skips the
	// hotkey main-thread loop.
	if wantsGUI(os.Args[1:]) {
		os.Exit(run())
	}
	code := 0
	mainthread.Init(func() { code = run() })
	os.Exit(code)
}
