package presenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"moodmic/audio"
	"moodmic/emotion"
	"moodmic/events"
	"moodmic/permission"
	"moodmic/sentiment"
	"moodmic/speech"
	"moodmic/transcriber"
)

type fakeListener struct {
	mu      sync.Mutex
	starts  int
	stops   int
	gate    permission.Gate
	states  chan speech.TranscriptState
	startFn func() error
}

func newFakeListener(gate permission.Gate) *fakeListener {
	return &fakeListener{gate: gate, states: make(chan speech.TranscriptState, 16)}
}

func (f *fakeListener) StartListening(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate.Status() != permission.Granted {
		f.states <- speech.TranscriptState{Err: speech.ErrPermissionDenied.Error()}
		return speech.ErrPermissionDenied
	}
	f.starts++
	f.states <- speech.TranscriptState{Capturing: true}
	return nil
}

func (f *fakeListener) StopListening() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeListener) States() <-chan speech.TranscriptState { return f.states }

func (f *fakeListener) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// scriptedAnalyzer answers requests by text. A text mapped to a nil reply
// blocks until the request is cancelled.
type scriptedAnalyzer struct {
	mu       sync.Mutex
	replies  map[string]reply
	canceled []string
}

type reply struct {
	result  *sentiment.Result
	err     error
	release chan struct{} // if set, the reply waits for it
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, text string) (sentiment.Result, error) {
	a.mu.Lock()
	r, ok := a.replies[text]
	a.mu.Unlock()
	if !ok {
		return sentiment.Result{}, fmt.Errorf("%w: unexpected text %q", sentiment.ErrRequestFailed, text)
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			a.mu.Lock()
			a.canceled = append(a.canceled, text)
			a.mu.Unlock()
			return sentiment.Result{}, fmt.Errorf("%w: %w", sentiment.ErrRequestFailed, ctx.Err())
		}
	}
	if r.result == nil && r.err == nil {
		<-ctx.Done()
		a.mu.Lock()
		a.canceled = append(a.canceled, text)
		a.mu.Unlock()
		return sentiment.Result{}, fmt.Errorf("%w: %w", sentiment.ErrRequestFailed, ctx.Err())
	}
	if r.err != nil {
		return sentiment.Result{}, r.err
	}
	return *r.result, nil
}

type capturePublisher struct {
	mu  sync.Mutex
	evs []events.MoodEvent
}

func (c *capturePublisher) Publish(_ context.Context, ev events.MoodEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
	return nil
}

func (c *capturePublisher) published() []events.MoodEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.MoodEvent(nil), c.evs...)
}

func startPresenter(t *testing.T, p *Presenter) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-p.Done()
	})
	return cancel
}

func waitFor(t *testing.T, p *Presenter, what string, ok func(State) bool) State {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if st := p.Snapshot(); ok(st) {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s; last state %+v", what, p.Snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAnalyzeResolvesEmotion(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	an := &scriptedAnalyzer{replies: map[string]reply{
		"what a day": {result: &sentiment.Result{Label: "joy", Score: 0.91}},
	}}
	pub := &capturePublisher{}
	p := New(newFakeListener(gate), an, gate, WithPublisher(pub))
	startPresenter(t, p)

	if st := p.Snapshot(); st.Phase != Idle || st.Emotion != emotion.Neutral || st.SessionID == "" {
		t.Fatalf("initial state = %+v", st)
	}

	p.SetText("what a day")
	p.Analyze()
	st := waitFor(t, p, "resolved", func(s State) bool { return s.Phase == Resolved })

	if st.Loading {
		t.Error("Loading still set")
	}
	if st.Result == nil || st.Result.Label != "joy" || st.Result.Score != 0.91 {
		t.Errorf("Result = %+v", st.Result)
	}
	if st.Emotion != emotion.Happy {
		t.Errorf("Emotion = %v, want happy", st.Emotion)
	}

	deadline := time.Now().Add(time.Second)
	for len(pub.published()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	evs := pub.published()
	if len(evs) != 1 || evs[0].Label != "joy" || evs[0].Emotion != "happy" || evs[0].SessionID != st.SessionID {
		t.Errorf("published = %+v", evs)
	}
}

func TestFailureKeepsPriorResult(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	an := &scriptedAnalyzer{replies: map[string]reply{
		"i love it": {result: &sentiment.Result{Label: "love", Score: 0.7}},
		"offline":   {err: fmt.Errorf("%w: dial tcp: refused", sentiment.ErrRequestFailed)},
	}}
	p := New(newFakeListener(gate), an, gate)
	startPresenter(t, p)

	p.SetText("i love it")
	p.Analyze()
	first := waitFor(t, p, "first result", func(s State) bool { return s.Result != nil })

	p.SetText("offline")
	p.Analyze()
	st := waitFor(t, p, "failure notice", func(s State) bool { return s.Notice != "" })

	if st.Notice != NoticeRequestFailed {
		t.Errorf("Notice = %q", st.Notice)
	}
	if st.Loading {
		t.Error("Loading still set after failure")
	}
	if st.Result != first.Result || st.Emotion != emotion.Love {
		t.Errorf("prior result not kept: %+v / %v", st.Result, st.Emotion)
	}
	if st.Phase != Resolved {
		t.Errorf("Phase = %v, want resolved", st.Phase)
	}

	p.SetText("next")
	waitFor(t, p, "notice cleared", func(s State) bool { return s.Notice == "" && s.Input == "next" })
}

func TestAnalyzeEmptyInput(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	p := New(newFakeListener(gate), &scriptedAnalyzer{}, gate)
	startPresenter(t, p)

	p.SetText("   ")
	p.Analyze()
	st := waitFor(t, p, "notice", func(s State) bool { return s.Notice != "" })
	if st.Notice != NoticeNothingToSend || st.Loading {
		t.Errorf("state = %+v", st)
	}
}

func TestCancelAndReplace(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	an := &scriptedAnalyzer{replies: map[string]reply{
		"slow":  {}, // blocks until cancelled
		"quick": {result: &sentiment.Result{Label: "excitement", Score: 0.5}},
	}}
	p := New(newFakeListener(gate), an, gate)
	startPresenter(t, p)

	p.SetText("slow")
	p.Analyze()
	waitFor(t, p, "loading", func(s State) bool { return s.Loading })

	p.SetText("quick")
	p.Analyze()
	st := waitFor(t, p, "resolved", func(s State) bool { return s.Phase == Resolved })
	if st.Emotion != emotion.Excited {
		t.Errorf("Emotion = %v, want excited", st.Emotion)
	}

	// The stale completion of "slow" must not disturb the state.
	time.Sleep(50 * time.Millisecond)
	if got := p.Snapshot(); got.Notice != "" || got.Loading || got.Emotion != emotion.Excited {
		t.Errorf("stale completion leaked: %+v", got)
	}
	an.mu.Lock()
	canceled := an.canceled
	an.mu.Unlock()
	if len(canceled) != 1 || canceled[0] != "slow" {
		t.Errorf("canceled = %v, want [slow]", canceled)
	}
}

func TestTranscriptBecomesInput(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	l := newFakeListener(gate)
	p := New(l, &scriptedAnalyzer{}, gate)
	startPresenter(t, p)

	p.StartListening()
	waitFor(t, p, "capturing", func(s State) bool { return s.Phase == Capturing })

	l.states <- speech.TranscriptState{Capturing: true, Text: "so"}
	l.states <- speech.TranscriptState{Text: "so angry"}
	st := waitFor(t, p, "final transcript", func(s State) bool { return !s.Transcript.Capturing && s.Input == "so angry" })
	if st.Phase != Idle {
		t.Errorf("Phase = %v, want idle", st.Phase)
	}

	p.StopListening()
	waitFor(t, p, "stop forwarded", func(State) bool { _, stops := l.counts(); return stops == 1 })
}

func TestPermissionPrompt(t *testing.T) {
	for _, granted := range []bool{true, false} {
		t.Run(fmt.Sprint(granted), func(t *testing.T) {
			gate := permission.NewStatic(permission.Undetermined)
			l := newFakeListener(gate)
			p := New(l, &scriptedAnalyzer{}, gate)
			startPresenter(t, p)

			p.StartListening()
			waitFor(t, p, "prompt", func(s State) bool { return s.PermissionPrompt })
			if starts, _ := l.counts(); starts != 0 {
				t.Fatalf("listener started before permission answer")
			}

			p.AnswerPermission(granted)
			if granted {
				waitFor(t, p, "capturing", func(s State) bool { return s.Transcript.Capturing && !s.PermissionPrompt })
				if gate.Status() != permission.Granted {
					t.Errorf("gate = %v", gate.Status())
				}
				return
			}
			st := waitFor(t, p, "permission error", func(s State) bool { return s.Transcript.Err != "" })
			if st.PermissionPrompt || st.Transcript.Capturing {
				t.Errorf("state = %+v", st)
			}
			if gate.Status() != permission.Denied {
				t.Errorf("gate = %v", gate.Status())
			}
			if starts, _ := l.counts(); starts != 0 {
				t.Errorf("listener started without permission")
			}
		})
	}
}

func TestRunCancelEndsSession(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	an := &scriptedAnalyzer{replies: map[string]reply{"wait": {}}}
	p := New(newFakeListener(gate), an, gate)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	sub, _ := p.Subscribe()
	p.SetText("wait")
	p.Analyze()
	waitFor(t, p, "loading", func(s State) bool { return s.Loading })

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v", err)
	}
	for range sub {
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		an.mu.Lock()
		n := len(an.canceled)
		an.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	an.mu.Lock()
	defer an.mu.Unlock()
	if len(an.canceled) != 1 {
		t.Errorf("in-flight request not cancelled with the session")
	}

	// Commands after the session ended must not block.
	p.Analyze()
}

func TestSubscribeCoalesces(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	p := New(newFakeListener(gate), &scriptedAnalyzer{}, gate)
	sub, unsubscribe := p.Subscribe()
	startPresenter(t, p)

	for i := 0; i < 20; i++ {
		p.SetText(fmt.Sprint(i))
	}
	waitFor(t, p, "last text", func(s State) bool { return s.Input == "19" })

	var last State
	timeout := time.After(time.Second)
	for last.Input != "19" {
		select {
		case last = <-sub:
		case <-timeout:
			t.Fatalf("subscriber never saw the newest state, last %+v", last)
		}
	}
	unsubscribe()
	unsubscribe()
	if _, ok := <-sub; ok {
		t.Error("channel open after unsubscribe")
	}
}

func TestFlushOrdersCommands(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	an := &scriptedAnalyzer{replies: map[string]reply{"hold": {}}}
	p := New(newFakeListener(gate), an, gate)
	startPresenter(t, p)

	p.SetText("hold")
	p.Analyze()
	p.Flush()
	if st := p.Snapshot(); !st.Loading || st.Input != "hold" {
		t.Fatalf("after Flush state = %+v, want loading with input", st)
	}
}

func TestFlushAfterRunReturns(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	p := New(newFakeListener(gate), &scriptedAnalyzer{}, gate)
	cancel := startPresenter(t, p)
	cancel()
	<-p.Done()

	done := make(chan struct{})
	go func() {
		p.Flush()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Flush blocked after Run returned")
	}
}

func TestStopListeningKeepsRequest(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	release := make(chan struct{})
	an := &scriptedAnalyzer{replies: map[string]reply{
		"keep going": {result: &sentiment.Result{Label: "joy", Score: 0.7}, release: release},
	}}
	l := newFakeListener(gate)
	p := New(l, an, gate)
	startPresenter(t, p)

	p.StartListening()
	waitFor(t, p, "capturing", func(s State) bool { return s.Transcript.Capturing })
	p.SetText("keep going")
	p.Analyze()
	waitFor(t, p, "loading", func(s State) bool { return s.Loading })

	p.StopListening()
	l.states <- speech.TranscriptState{Text: "keep going"}
	waitFor(t, p, "capture ended", func(s State) bool {
		_, stops := l.counts()
		return stops == 1 && !s.Transcript.Capturing
	})
	if !p.Snapshot().Loading {
		t.Fatal("stopping the capture ended the request")
	}

	close(release)
	st := waitFor(t, p, "resolved", func(s State) bool { return s.Phase == Resolved })
	if st.Emotion != emotion.Happy || st.Notice != "" {
		t.Errorf("state = %+v", st)
	}
	an.mu.Lock()
	defer an.mu.Unlock()
	if len(an.canceled) != 0 {
		t.Errorf("canceled = %v, want none", an.canceled)
	}
}

func TestSlowRecognizerDoesNotBlockSession(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	ac := audio.NewToneContext(time.Second, 0.3, false)
	rec := transcriber.NewFake("hello", nil).WithDialDelay(time.Second)
	adapter := speech.New(ac, rec, gate, speech.Options{})
	t.Cleanup(adapter.Close)
	p := New(adapter, &scriptedAnalyzer{}, gate)
	startPresenter(t, p)

	p.StartListening()
	waitFor(t, p, "starting", func(s State) bool { return s.Starting })

	begin := time.Now()
	p.SetText("typed meanwhile")
	p.Flush()
	adapter.Current()
	if d := time.Since(begin); d > 300*time.Millisecond {
		t.Fatalf("session blocked %v while the recognizer connected", d)
	}
	if st := p.Snapshot(); st.Input != "typed meanwhile" || !st.Busy() {
		t.Errorf("state = %+v", st)
	}

	waitFor(t, p, "capturing", func(s State) bool { return s.Transcript.Capturing && !s.Starting })
	p.StopListening()
	waitFor(t, p, "stopped", func(s State) bool { return !s.Busy() })
}

func TestStopWhileConnecting(t *testing.T) {
	gate := permission.NewStatic(permission.Granted)
	ac := audio.NewToneContext(time.Second, 0.3, false)
	rec := transcriber.NewFake("hello", nil).WithDialDelay(200 * time.Millisecond)
	adapter := speech.New(ac, rec, gate, speech.Options{})
	t.Cleanup(adapter.Close)
	p := New(adapter, &scriptedAnalyzer{}, gate)
	startPresenter(t, p)

	p.StartListening()
	waitFor(t, p, "starting", func(s State) bool { return s.Starting })
	p.StopListening()

	st := waitFor(t, p, "start abandoned", func(s State) bool { return !s.Starting })
	if st.Transcript.Capturing || st.Transcript.Err != "" {
		t.Errorf("state = %+v", st)
	}
	if adapter.Listening() {
		t.Error("adapter still listening")
	}
}
