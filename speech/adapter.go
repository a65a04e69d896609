package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"moodmic/audio"
	"moodmic/log"
	"moodmic/permission"
	"moodmic/transcriber"
)

var (
	ErrAlreadyListening = errors.New("already listening")
	ErrPermissionDenied = errors.New("microphone permission not granted")
	ErrClosed           = errors.New("speech adapter closed")
	ErrStopped          = errors.New("capture stopped while starting")
)

type Options struct {
	Device      *audio.DeviceInfo // nil selects the system default
	AutoStop    bool
	SilenceWarn time.Duration
	SilenceStop time.Duration
}

// Adapter turns microphone audio into a stream of TranscriptState. The
// microphone is opened on every StartListening and released when that
// capture ends, whatever the reason.
type Adapter struct {
	audio audio.Context
	rec   transcriber.Transcriber
	gate  permission.Gate
	opts  Options

	mu      sync.Mutex
	current TranscriptState
	active  *capture
	closed  bool

	states chan TranscriptState
	qmu    sync.Mutex
	queue  []TranscriptState
	qdone  bool
	signal chan struct{}
}

type capture struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (c *capture) requestStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *capture) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func New(ac audio.Context, rec transcriber.Transcriber, gate permission.Gate, opts Options) *Adapter {
	if opts.SilenceWarn <= 0 {
		opts.SilenceWarn = 4 * time.Second
	}
	if opts.SilenceStop <= 0 {
		opts.SilenceStop = 8 * time.Second
	}
	a := &Adapter{
		audio:  ac,
		rec:    rec,
		gate:   gate,
		opts:   opts,
		states: make(chan TranscriptState, 16),
		signal: make(chan struct{}, 1),
	}
	go a.pump()
	return a
}

// States delivers every emitted state in order. It is closed by Close.
func (a *Adapter) States() <-chan TranscriptState { return a.states }

func (a *Adapter) Current() TranscriptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Listening reports whether a capture is starting, running or still
// shutting down.
func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil
}

// StartListening opens the microphone and a recognizer session for lang.
// Every failure is also emitted as a non-capturing state with Err set. The
// adapter lock is not held while the recognizer connects, so Current and
// StopListening stay responsive; a stop during the connect cancels the start
// and returns ErrStopped.
func (a *Adapter) StartListening(ctx context.Context, lang string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.active != nil {
		a.mu.Unlock()
		return ErrAlreadyListening
	}
	if st := a.gate.Status(); st != permission.Granted {
		log.Warnf("start refused: microphone permission %s", st)
		a.failLocked(ErrPermissionDenied)
		a.mu.Unlock()
		return ErrPermissionDenied
	}
	c := &capture{stop: make(chan struct{}), done: make(chan struct{})}
	a.active = c
	a.mu.Unlock()

	dev, sess, err := a.open(ctx, lang)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil && c.stopped() {
		dev.Close()
		go sess.Close()
		err = ErrStopped
	}
	if err != nil {
		a.active = nil
		if !errors.Is(err, ErrStopped) {
			a.failLocked(err)
		}
		close(c.done)
		return err
	}

	feed := &feedGate{sess: sess}
	dev.SetCallback(feed.write)
	if err := dev.Start(); err != nil {
		feed.shut()
		dev.ClearCallback()
		dev.Close()
		go sess.Close()
		err = fmt.Errorf("microphone start: %w", err)
		a.active = nil
		a.failLocked(err)
		close(c.done)
		return err
	}

	a.publishLocked(TranscriptState{Capturing: true})
	log.Infof("capture started on %s (%s, %s)", dev.DeviceName(), a.rec.Name(), lang)

	go a.run(ctx, c, dev, sess, feed)
	return nil
}

// open acquires the capture device and dials the recognizer. The device is
// released again if the dial fails.
func (a *Adapter) open(ctx context.Context, lang string) (audio.CaptureDevice, transcriber.Session, error) {
	dev, err := a.audio.NewCapture(a.opts.Device, audio.DefaultConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("microphone unavailable: %w", err)
	}
	sess, err := a.rec.NewSession(ctx, transcriber.SessionConfig{Language: lang})
	if err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("speech recognizer unavailable: %w", err)
	}
	return dev, sess, nil
}

// StopListening asks the running capture to end and returns at once. The
// terminal state follows on States. Calling it when idle does nothing.
func (a *Adapter) StopListening() {
	a.mu.Lock()
	c := a.active
	a.mu.Unlock()
	if c != nil {
		c.requestStop()
	}
}

// Close stops any capture, waits until the microphone is released and then
// closes the States stream after the queued states are delivered.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	c := a.active
	a.mu.Unlock()

	if c != nil {
		c.requestStop()
		<-c.done
	}

	a.qmu.Lock()
	a.qdone = true
	a.qmu.Unlock()
	a.wake()
}

func (a *Adapter) run(ctx context.Context, c *capture, dev audio.CaptureDevice, sess transcriber.Session, feed *feedGate) {
	defer close(c.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	monitor := newSilenceMonitor(a.opts.SilenceWarn, a.opts.SilenceStop, a.opts.AutoStop)

	updates := sess.Updates()
	last := ""
	reason := "stopped"

loop:
	for {
		select {
		case <-c.stop:
			break loop
		case <-ctx.Done():
			reason = "canceled"
			break loop
		case <-sess.Failed():
			reason = "recognizer failed"
			break loop
		case text, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			last = text
			a.publish(TranscriptState{Capturing: true, Text: text})
		case <-ticker.C:
			switch monitor.Tick(feed.meter.Tick()) {
			case SilenceWarn:
				log.Warn("no voice detected")
			case SilenceClear:
				log.Info("voice resumed")
			case SilenceStop:
				reason = "silence"
				break loop
			}
		}
	}

	// Release the microphone before waiting on the recognizer.
	feed.shut()
	dev.Stop()
	dev.ClearCallback()
	dev.Close()

	drained := make(chan string, 1)
	go func() {
		final := last
		if updates != nil {
			for text := range updates {
				final = text
			}
		}
		drained <- final
	}()
	res, err := sess.Close()
	final := <-drained
	if res.Text != "" {
		final = res.Text
	}

	st := TranscriptState{Text: final}
	if err != nil {
		st.Err = fmt.Sprintf("speech recognition failed: %v", err)
		log.Errorf("capture ended (%s): %v", reason, err)
	} else {
		log.Infof("capture ended (%s): %d chars", reason, len(final))
	}

	a.mu.Lock()
	a.active = nil
	a.publishLocked(st)
	a.mu.Unlock()
}

func (a *Adapter) failLocked(err error) {
	a.publishLocked(TranscriptState{Text: a.current.Text, Err: err.Error()})
}

func (a *Adapter) publish(st TranscriptState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publishLocked(st)
}

// publishLocked records st as current and queues it for the pump. It never
// blocks, so callers of the adapter may also be its consumer.
func (a *Adapter) publishLocked(st TranscriptState) {
	a.current = st
	a.qmu.Lock()
	a.queue = append(a.queue, st)
	a.qmu.Unlock()
	a.wake()
}

func (a *Adapter) wake() {
	select {
	case a.signal <- struct{}{}:
	default:
	}
}

func (a *Adapter) pump() {
	defer close(a.states)
	for {
		a.qmu.Lock()
		batch := a.queue
		a.queue = nil
		done := a.qdone
		a.qmu.Unlock()

		for _, st := range batch {
			a.states <- st
		}
		if len(batch) > 0 {
			continue
		}
		if done {
			return
		}
		<-a.signal
	}
}

// feedGate forwards device audio to the recognizer until shut. The device
// callback may still fire while the device is being stopped.
type feedGate struct {
	mu     sync.RWMutex
	sess   transcriber.Session
	meter  voiceMeter
	closed bool
}

func (f *feedGate) write(data []byte, _ uint32) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	f.meter.Process(data)
	f.sess.Feed(data)
}

func (f *feedGate) shut() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
