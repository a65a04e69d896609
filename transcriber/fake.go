package transcriber

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"moodmic/encoder"
)

// FakeTranscriber plays back a script instead of calling a recognizer:
// partial texts while audio is fed, then the final text on Close.
type FakeTranscriber struct {
	text     string
	err      error
	partials []string
	midErr   error
	dialErr  error
	dialWait time.Duration
	step     time.Duration
	lang     string
	sessions atomic.Int32
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err, step: 20 * time.Millisecond}
}

// WithPartials sets interim texts emitted one per step after the session opens.
func (f *FakeTranscriber) WithPartials(p ...string) *FakeTranscriber {
	f.partials = p
	return f
}

// WithMidStreamError makes every session fail after its partials.
func (f *FakeTranscriber) WithMidStreamError(err error) *FakeTranscriber {
	f.midErr = err
	return f
}

// WithDialError makes NewSession fail.
func (f *FakeTranscriber) WithDialError(err error) *FakeTranscriber {
	f.dialErr = err
	return f
}

// WithDialDelay makes NewSession take d, like a slow network connect.
func (f *FakeTranscriber) WithDialDelay(d time.Duration) *FakeTranscriber {
	f.dialWait = d
	return f
}

func (f *FakeTranscriber) Name() string            { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

// Sessions reports how many sessions were opened.
func (f *FakeTranscriber) Sessions() int { return int(f.sessions.Load()) }

func (f *FakeTranscriber) NewSession(ctx context.Context, _ SessionConfig) (Session, error) {
	if f.dialWait > 0 {
		select {
		case <-time.After(f.dialWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.sessions.Add(1)
	s := &fakeSession{
		text:    f.text,
		err:     f.err,
		midErr:  f.midErr,
		updates: make(chan string, len(f.partials)+1),
		failed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.played.Add(1)
	go s.play(ctx, f.partials, f.step)
	return s, nil
}

type fakeSession struct {
	text    string
	err     error
	midErr  error
	updates chan string
	failed  chan struct{}
	done    chan struct{}
	played  sync.WaitGroup

	fed       atomic.Int64
	closeOnce sync.Once
}

func (s *fakeSession) play(ctx context.Context, partials []string, step time.Duration) {
	defer s.played.Done()
	for _, p := range partials {
		select {
		case <-time.After(step):
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
		s.updates <- strings.TrimSpace(p)
	}
	if s.midErr != nil {
		close(s.failed)
	}
}

func (s *fakeSession) Feed(pcm []byte) { s.fed.Add(int64(len(pcm))) }

func (s *fakeSession) Updates() <-chan string { return s.updates }

func (s *fakeSession) Failed() <-chan struct{} { return s.failed }

func (s *fakeSession) Close() (SessionResult, error) {
	var res SessionResult
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.played.Wait()
		defer close(s.updates)
		switch {
		case s.midErr != nil:
			err = s.midErr
			return
		case s.err != nil:
			err = s.err
			return
		}
		if s.text != "" {
			select {
			case s.updates <- s.text:
			default:
			}
		}
		res = SessionResult{
			Text:    s.text,
			HasText: s.text != "",
			Stream: &StreamStats{
				SentKB: float64(s.fed.Load()) / 1024,
				AudioS: float64(s.fed.Load()) / float64(encoder.SampleRate*encoder.Channels*encoder.BitsPerSample/8),
			},
		}
	})
	return res, err
}
