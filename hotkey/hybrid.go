package hotkey

import (
	"sync"
	"sync/atomic"
	"time"
)

type Mode string

const (
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

const DefaultLongPress = 350 * time.Millisecond

// Action is what the hotkey asks of the capture.
type Action int

const (
	ActionStart Action = iota
	ActionStop
)

func (a Action) String() string {
	if a == ActionStart {
		return "start"
	}
	return "stop"
}

// Hybrid turns raw key edges into start/stop actions on one chord. Every
// press starts listening right away. Releasing before longPress latches the
// capture on (toggle) until the next press; holding past it makes the
// release end the capture (push-to-talk).
type Hybrid struct {
	actions chan Action
	toggle  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewHybrid(hk Hotkey, longPress time.Duration) *Hybrid {
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	h := &Hybrid{
		actions: make(chan Action, 2),
		done:    make(chan struct{}),
	}
	go h.run(hk, longPress)
	return h
}

func (h *Hybrid) Actions() <-chan Action { return h.actions }

// IsToggle reports whether the current capture was latched by a short tap.
func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

func (h *Hybrid) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hybrid) emit(a Action) bool {
	select {
	case h.actions <- a:
		return true
	case <-h.done:
		return false
	}
}

// wait blocks on ch until it fires or the hybrid is closed.
func (h *Hybrid) wait(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	for {
		if !h.wait(hk.Keydown()) {
			return
		}
		h.toggle.Store(false)
		if !h.emit(ActionStart) {
			return
		}

		timer := time.NewTimer(longPress)
		select {
		case <-h.done:
			timer.Stop()
			return
		case <-timer.C:
			if !h.wait(hk.Keyup()) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
			h.toggle.Store(true)
			if !h.wait(hk.Keydown()) || !h.wait(hk.Keyup()) {
				return
			}
			h.toggle.Store(false)
		}
		if !h.emit(ActionStop) {
			return
		}
	}
}
