package presenter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"moodmic/emotion"
	"moodmic/events"
	"moodmic/log"
	"moodmic/permission"
	"moodmic/sentiment"
	"moodmic/speech"
)

const (
	NoticeRequestFailed = "request failed"
	NoticeNothingToSend = "nothing to analyze"
)

type Listener interface {
	StartListening(ctx context.Context, lang string) error
	StopListening()
	States() <-chan speech.TranscriptState
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (sentiment.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.MoodEvent) error
}

// Recorder receives session counters; *metrics.Metrics implements it.
type Recorder interface {
	RecordListenStarted()
	RecordListenFailed(reason string)
	RecordTranscript()
	RecordSentiment(outcome string, d time.Duration)
	RecordEmotion(emotion string)
	RecordPublish(err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordListenStarted()                  {}
func (nopRecorder) RecordListenFailed(string)             {}
func (nopRecorder) RecordTranscript()                     {}
func (nopRecorder) RecordSentiment(string, time.Duration) {}
func (nopRecorder) RecordEmotion(string)                  {}
func (nopRecorder) RecordPublish(error)                   {}

type Option func(*Presenter)

func WithLanguage(lang string) Option { return func(p *Presenter) { p.lang = lang } }

func WithPublisher(pub Publisher) Option { return func(p *Presenter) { p.pub = pub } }

func WithRecorder(r Recorder) Option { return func(p *Presenter) { p.rec = r } }

// WithProvider names the recognizer in session logs.
func WithProvider(name string) Option { return func(p *Presenter) { p.provider = name } }

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdSetText
	cmdAnalyze
	cmdAnswer
	cmdDismiss
	cmdFlush
)

type command struct {
	kind    cmdKind
	text    string
	granted bool
	ack     chan struct{}
}

type completion struct {
	seq    int
	text   string
	result sentiment.Result
	err    error
	took   time.Duration
}

// Presenter owns the screen state of one session. Every change happens on
// the Run goroutine; commands, adapter states and request completions reach
// it as messages.
type Presenter struct {
	listener Listener
	analyzer Analyzer
	gate     permission.Gate
	pub      Publisher
	rec      Recorder
	lang     string
	provider string

	cmds        chan command
	completions chan completion
	starts      chan error
	done        chan struct{}

	// owned by Run
	state        State
	seq          int
	cancelReq    context.CancelFunc
	pendingStart bool
	resolved     int
	wasCapturing bool
	publishing   sync.WaitGroup

	mu   sync.Mutex
	snap State
	subs map[chan State]struct{}
}

func New(l Listener, a Analyzer, gate permission.Gate, opts ...Option) *Presenter {
	p := &Presenter{
		listener:    l,
		analyzer:    a,
		gate:        gate,
		rec:         nopRecorder{},
		lang:        "en",
		provider:    "unknown",
		cmds:        make(chan command, 16),
		completions: make(chan completion, 4),
		starts:      make(chan error, 1),
		done:        make(chan struct{}),
		subs:        make(map[chan State]struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.state = State{SessionID: uuid.NewString(), Emotion: emotion.Neutral}
	p.snap = p.state
	return p
}

func (p *Presenter) StartListening()               { p.send(command{kind: cmdStart}) }
func (p *Presenter) StopListening()                { p.send(command{kind: cmdStop}) }
func (p *Presenter) SetText(s string)              { p.send(command{kind: cmdSetText, text: s}) }
func (p *Presenter) Analyze()                      { p.send(command{kind: cmdAnalyze}) }
func (p *Presenter) AnswerPermission(granted bool) { p.send(command{kind: cmdAnswer, granted: granted}) }
func (p *Presenter) Dismiss()                      { p.send(command{kind: cmdDismiss}) }

// Flush returns once every command sent before it has been handled.
func (p *Presenter) Flush() {
	ack := make(chan struct{})
	p.send(command{kind: cmdFlush, ack: ack})
	select {
	case <-ack:
	case <-p.done:
	}
}

func (p *Presenter) send(c command) {
	select {
	case p.cmds <- c:
	case <-p.done:
	}
}

// Snapshot returns the latest published state.
func (p *Presenter) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Subscribe returns a channel that always holds the newest state; slow
// readers skip intermediate ones. The channel is closed when Run returns or
// cancel is called.
func (p *Presenter) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	p.mu.Lock()
	ch <- p.snap
	select {
	case <-p.done:
		close(ch)
		p.mu.Unlock()
		return ch, func() {}
	default:
	}
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.subs[ch]; ok {
				delete(p.subs, ch)
				close(ch)
			}
		})
	}
}

// Done is closed when Run has returned.
func (p *Presenter) Done() <-chan struct{} { return p.done }

// Run drives the session until ctx is cancelled. Requests started by the
// session use contexts derived from ctx, so none outlives it.
func (p *Presenter) Run(ctx context.Context) error {
	log.SessionStart(p.state.SessionID, p.provider, p.lang)
	defer p.finish()

	states := p.listener.States()
	for {
		select {
		case <-ctx.Done():
			if p.cancelReq != nil {
				p.cancelReq()
			}
			p.listener.StopListening()
			return ctx.Err()
		case c := <-p.cmds:
			p.handleCommand(ctx, c)
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			p.handleTranscript(st)
		case c := <-p.completions:
			p.handleCompletion(ctx, c)
		case err := <-p.starts:
			p.handleStarted(err)
		}
		p.publish()
	}
}

func (p *Presenter) finish() {
	p.publishing.Wait()
	log.SessionEnd(p.state.SessionID, p.resolved)
	p.mu.Lock()
	close(p.done)
	for ch := range p.subs {
		close(ch)
	}
	p.subs = map[chan State]struct{}{}
	p.mu.Unlock()
}

func (p *Presenter) handleCommand(ctx context.Context, c command) {
	if c.kind == cmdFlush {
		close(c.ack)
		return
	}
	// Any user action replaces a transient notice.
	p.state.Notice = ""

	switch c.kind {
	case cmdStart:
		if p.gate.Status() == permission.Undetermined {
			p.state.PermissionPrompt = true
			p.pendingStart = true
			return
		}
		p.startListening(ctx)
	case cmdStop:
		p.pendingStart = false
		p.listener.StopListening()
	case cmdSetText:
		p.state.Input = c.text
	case cmdAnalyze:
		p.analyze(ctx)
	case cmdAnswer:
		if err := p.gate.Set(c.granted); err != nil {
			log.Errorf("saving microphone permission: %v", err)
		}
		p.state.PermissionPrompt = false
		if p.pendingStart {
			p.pendingStart = false
			p.startListening(ctx)
		}
	case cmdDismiss:
	}
}

// startListening runs the adapter start off the loop: connecting to a
// recognizer can take seconds and the session must keep taking commands.
func (p *Presenter) startListening(ctx context.Context) {
	if p.state.Starting {
		return
	}
	p.state.Starting = true
	go func() {
		err := p.listener.StartListening(ctx, p.lang)
		select {
		case p.starts <- err:
		case <-ctx.Done():
		}
	}()
}

func (p *Presenter) handleStarted(err error) {
	p.state.Starting = false
	switch {
	case err == nil:
		p.rec.RecordListenStarted()
	case errors.Is(err, speech.ErrAlreadyListening), errors.Is(err, speech.ErrStopped):
	case errors.Is(err, speech.ErrPermissionDenied):
		p.rec.RecordListenFailed("permission")
	default:
		p.rec.RecordListenFailed("unavailable")
	}
}

func (p *Presenter) handleTranscript(st speech.TranscriptState) {
	if st.Capturing || st.Text != p.state.Transcript.Text {
		p.state.Input = st.Text
	}
	if p.wasCapturing && !st.Capturing {
		switch {
		case st.Err != "":
			p.rec.RecordListenFailed("recognition")
		case st.Text != "":
			p.rec.RecordTranscript()
		}
	}
	p.wasCapturing = st.Capturing
	p.state.Transcript = st
}

// analyze sends the current input. A request already in flight is
// cancelled; its completion will carry a stale sequence number.
func (p *Presenter) analyze(ctx context.Context) {
	text := strings.TrimSpace(p.state.Input)
	if text == "" {
		p.state.Notice = NoticeNothingToSend
		return
	}
	if p.cancelReq != nil {
		p.cancelReq()
	}
	p.seq++
	seq := p.seq
	reqCtx, cancel := context.WithCancel(ctx)
	p.cancelReq = cancel
	p.state.Loading = true

	go func() {
		start := time.Now()
		res, err := p.analyzer.Analyze(reqCtx, text)
		c := completion{seq: seq, text: text, result: res, err: err, took: time.Since(start)}
		select {
		case p.completions <- c:
		case <-ctx.Done():
		}
	}()
}

func (p *Presenter) handleCompletion(ctx context.Context, c completion) {
	log.SentimentRequest(c.seq, len(c.text), c.took, c.err)
	if c.seq != p.seq {
		p.rec.RecordSentiment("stale", c.took)
		return
	}
	p.cancelReq()
	p.cancelReq = nil
	p.state.Loading = false

	if c.err != nil {
		log.Warnf("sentiment request %d failed: %v", c.seq, c.err)
		p.rec.RecordSentiment("failed", c.took)
		p.state.Notice = NoticeRequestFailed
		return
	}

	res := c.result
	e := emotion.FromLabel(res.Label)
	p.state.Result = &res
	p.state.Emotion = e
	p.resolved++
	p.rec.RecordSentiment("ok", c.took)
	p.rec.RecordEmotion(e.String())
	log.Mood(e.String(), res.Label, res.Score, c.text)

	if p.pub != nil {
		ev := events.MoodEvent{
			SessionID: p.state.SessionID,
			Text:      c.text,
			Label:     res.Label,
			Score:     res.Score,
			Emotion:   e.String(),
			At:        time.Now().UTC(),
		}
		p.publishing.Add(1)
		go func() {
			defer p.publishing.Done()
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			p.rec.RecordPublish(p.pub.Publish(pubCtx, ev))
		}()
	}
}

// publish makes the Run-owned state visible to readers.
func (p *Presenter) publish() {
	p.state.Phase = p.state.phase()
	st := p.state

	p.mu.Lock()
	defer p.mu.Unlock()
	if st == p.snap {
		return
	}
	p.snap = st
	for ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
