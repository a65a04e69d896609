package main

import (
	"context"

	"moodmic/beep"
	"moodmic/hotkey"
	"moodmic/log"
	"moodmic/presenter"
)

// Commander is the command half of the presenter, shared by every front end
// (TUI, GUI, headless driver, hotkey).
type Commander interface {
	StartListening()
	StopListening()
	SetText(s string)
	Analyze()
	AnswerPermission(granted bool)
	Dismiss()
	Snapshot() presenter.State
}

// driveHotkey turns hybrid hotkey actions into presenter commands. A press
// while a capture started elsewhere is running stops it, and the stop the
// hybrid sends for that same press is swallowed.
func driveHotkey(ctx context.Context, hy *hotkey.Hybrid, c Commander) {
	swallowStop := false
	for {
		select {
		case <-ctx.Done():
			return
		case act := <-hy.Actions():
			log.Debugf("hotkey %s (toggle=%v)", act, hy.IsToggle())
			switch act {
			case hotkey.ActionStart:
				if c.Snapshot().Transcript.Capturing {
					c.StopListening()
					swallowStop = true
					continue
				}
				c.StartListening()
			case hotkey.ActionStop:
				if swallowStop {
					swallowStop = false
					continue
				}
				c.StopListening()
			}
		}
	}
}

// forwardStates calls fn with every state the presenter publishes until ctx
// ends or the presenter stops.
func forwardStates(ctx context.Context, p *presenter.Presenter, fn func(presenter.State)) {
	ch, cancel := p.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			fn(st)
		}
	}
}

// cueFor picks the sound for a state change, if any.
func cueFor(prev, next presenter.State) (beep.Cue, bool) {
	switch {
	case !prev.Transcript.Capturing && next.Transcript.Capturing:
		return beep.CueStart, true
	case prev.Transcript.Capturing && !next.Transcript.Capturing:
		if next.Transcript.Err != "" {
			return beep.CueError, true
		}
		return beep.CueEnd, true
	case prev.Loading && !next.Loading:
		if next.Notice == presenter.NoticeRequestFailed {
			return beep.CueError, true
		}
		if next.Result != nil && next.Result != prev.Result {
			return beep.CueResolved, true
		}
	case !prev.Transcript.Capturing && next.Transcript.Err != "" && next.Transcript != prev.Transcript:
		return beep.CueError, true
	}
	return 0, false
}

// playCues sounds a cue for each interesting transition.
func playCues(ctx context.Context, p *presenter.Presenter) {
	prev := p.Snapshot()
	forwardStates(ctx, p, func(st presenter.State) {
		if cue, ok := cueFor(prev, st); ok {
			beep.Play(cue)
		}
		prev = st
	})
}
