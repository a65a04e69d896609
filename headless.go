package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"moodmic/hotkey"
	"moodmic/log"
	"moodmic/presenter"
)

const waitTimeout = 30 * time.Second

// runHeadless drives the session from line commands on in and prints every
// published state to out as one JSON object per line. Lines that are not
// state start with "#".
func (a *app) runHeadless(ctx context.Context, cancel context.CancelFunc, in io.Reader, out io.Writer) int {
	a.opts.quiet = true
	fk := hotkey.NewFake()
	a.hk = fk
	a.hybrid = hotkey.NewHybrid(fk, a.opts.longPress)
	a.start(ctx, false)
	go driveHotkey(ctx, a.hybrid, a.presenter)
	defer a.stop(cancel)

	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	var printed presenter.State
	go forwardStates(ctx, a.presenter, func(st presenter.State) {
		b, err := json.Marshal(st)
		if err != nil {
			log.Errorf("encoding state: %v", err)
			return
		}
		outMu.Lock()
		fmt.Fprintf(out, "%s\n", b)
		printed = st
		outMu.Unlock()
	})
	// finish waits for the session to settle and its last state to be printed.
	finish := func() int {
		a.waitSettled(ctx, waitTimeout)
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			outMu.Lock()
			done := printed == a.presenter.Snapshot()
			outMu.Unlock()
			if done {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		return 0
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return 0
		case line, ok = <-lines:
		}
		if !ok {
			return finish()
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch strings.ToUpper(cmd) {
		case "":
		case "START":
			a.presenter.StartListening()
		case "STOP":
			a.presenter.StopListening()
		case "TEXT":
			a.presenter.SetText(arg)
		case "ANALYZE":
			a.presenter.Analyze()
		case "GRANT":
			a.presenter.AnswerPermission(true)
		case "DENY":
			a.presenter.AnswerPermission(false)
		case "DISMISS":
			a.presenter.Dismiss()
		case "KEYDOWN":
			fk.SimKeydown()
		case "KEYUP":
			fk.SimKeyup()
		case "WAIT":
			if !a.waitSettled(ctx, waitTimeout) {
				printf("# wait timed out\n")
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return finish()
		default:
			printf("# unknown command %q\n", cmd)
		}
	}
}

// settled reports that no capture or request is running and the presenter
// has seen the adapter's last state.
func (a *app) settled() bool {
	st := a.presenter.Snapshot()
	return !a.adapter.Listening() && !st.Busy() && st.Transcript == a.adapter.Current()
}

func (a *app) waitSettled(ctx context.Context, timeout time.Duration) bool {
	a.presenter.Flush()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if a.settled() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}
