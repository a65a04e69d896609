package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"moodmic/config"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestLanguageCodes(t *testing.T) {
	for _, tt := range []struct{ in, google, whisper string }{
		{"", "en-US", ""},
		{"en", "en-US", "en"},
		{"en-GB", "en-GB", "en"},
		{"pt_BR", "pt_BR", "pt"},
		{"de", "de", "de"},
	} {
		if got := googleLanguageCode(tt.in); got != tt.google {
			t.Errorf("googleLanguageCode(%q) = %q, want %q", tt.in, got, tt.google)
		}
		if got := baseLanguage(tt.in); got != tt.whisper {
			t.Errorf("baseLanguage(%q) = %q, want %q", tt.in, got, tt.whisper)
		}
	}
}

func TestNewPicksProvider(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Speech.Language = "en"
	if _, err := New(ctx, cfg); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("no keys: err = %v, want ErrNoProvider", err)
	}

	cfg.Groq.APIKey = "gk"
	tr, err := New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name() != "groq" || tr.GetLanguage() != "en" {
		t.Errorf("got %s/%s, want groq/en", tr.Name(), tr.GetLanguage())
	}

	cfg.Deepgram.APIKey = "dk"
	if tr, _ := New(ctx, cfg); tr.Name() != "deepgram" {
		t.Errorf("deepgram key should win, got %s", tr.Name())
	}

	cfg.Speech.Provider = "groq"
	if tr, _ := New(ctx, cfg); tr.Name() != "groq" {
		t.Errorf("explicit provider ignored, got %s", tr.Name())
	}

	cfg.Speech.Provider = "whisper.cpp"
	if _, err := New(ctx, cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

// scriptedRaw is an in-memory rawStreamSession.
type scriptedRaw struct {
	recv      chan streamUpdate
	finalText string
	sendErr   error
	sent      atomic.Int64
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedRaw(finalText string, updates ...streamUpdate) *scriptedRaw {
	r := &scriptedRaw{recv: make(chan streamUpdate, len(updates)+1), finalText: finalText, closed: make(chan struct{})}
	for _, u := range updates {
		r.recv <- u
	}
	return r
}

func (r *scriptedRaw) Send(pcm []byte) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent.Add(int64(len(pcm)))
	return nil
}

func (r *scriptedRaw) CloseSend() error {
	r.recv <- streamUpdate{Transcript: r.finalText, IsFinal: true, FromFinalize: true}
	return nil
}

func (r *scriptedRaw) Recv() (streamUpdate, error) {
	select {
	case u := <-r.recv:
		return u, nil
	case <-r.closed:
		return streamUpdate{}, errors.New("use of closed connection")
	}
}

func (r *scriptedRaw) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func collect(ch <-chan string) []string {
	var out []string
	for s := range ch {
		out = append(out, s)
	}
	return out
}

func TestStreamSessionInterimAndCommitted(t *testing.T) {
	raw := newScriptedRaw("and you",
		streamUpdate{Transcript: "hel"},
		streamUpdate{Transcript: "hello there", IsFinal: true},
		streamUpdate{Transcript: "how are"},
	)
	ss := newStreamSession("test", func() (rawStreamSession, error) { return raw, nil })

	var got []string
	done := make(chan struct{})
	go func() { got = collect(ss.Updates()); close(done) }()

	ss.Feed(make([]byte, streamChunkBytes*2+10))
	time.Sleep(50 * time.Millisecond)

	res, err := ss.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done

	if res.Text != "hello there and you" {
		t.Errorf("Text = %q", res.Text)
	}
	want := []string{"hel", "hello there", "hello there how are", "hello there and you"}
	for i, w := range want {
		if i >= len(got) || got[i] != w {
			t.Fatalf("updates = %q, want prefix %q", got, want)
		}
	}
	if raw.sent.Load() != int64(streamChunkBytes*2+10) {
		t.Errorf("sent %d bytes, want %d (tail must be flushed)", raw.sent.Load(), streamChunkBytes*2+10)
	}
	if res.Stream == nil || res.Stream.CommitEvents != 2 {
		t.Errorf("stream stats = %+v, want 2 commits", res.Stream)
	}
}

func TestStreamSessionDialError(t *testing.T) {
	dialErr := errors.New("connection refused")
	ss := newStreamSession("test", func() (rawStreamSession, error) { return nil, dialErr })

	select {
	case <-ss.Failed():
	case <-time.After(time.Second):
		t.Fatal("Failed not closed after dial error")
	}
	ss.Feed(make([]byte, 100))
	if _, err := ss.Close(); !errors.Is(err, dialErr) {
		t.Errorf("Close err = %v, want %v", err, dialErr)
	}
}

func TestStreamSessionSendErrorFailsSession(t *testing.T) {
	raw := newScriptedRaw("")
	raw.sendErr = errors.New("broken pipe")
	ss := newStreamSession("test", func() (rawStreamSession, error) { return raw, nil })
	go collect(ss.Updates())

	ss.Feed(make([]byte, streamChunkBytes))
	select {
	case <-ss.Failed():
	case <-time.After(time.Second):
		t.Fatal("Failed not closed after send error")
	}
	// Feeding a failed session must not block.
	ss.Feed(make([]byte, streamChunkBytes*4))

	if _, err := ss.Close(); err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Close err = %v, want broken pipe", err)
	}
}

func TestDeepgramListenURL(t *testing.T) {
	d := NewDeepgram("k", "", "https://api.example.com/v1/")
	got, err := d.listenURL("en-US")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "wss" || u.Host != "api.example.com" || u.Path != "/v1/listen" {
		t.Errorf("url = %s", got)
	}
	q := u.Query()
	for k, v := range map[string]string{
		"model": deepgramModel, "encoding": "linear16", "sample_rate": "16000",
		"channels": "1", "interim_results": "true", "language": "en-US",
	} {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestDeepgramStreamEndToEnd(t *testing.T) {
	authCh := make(chan string, 1)
	var gotAudio atomic.Int64
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send := func(text string, final, fromFinalize bool) {
			msg := map[string]any{
				"type":          "Results",
				"is_final":      final,
				"from_finalize": fromFinalize,
				"channel": map[string]any{
					"alternatives": []map[string]any{{"transcript": text}},
				},
			}
			conn.WriteJSON(msg)
		}
		conn.WriteJSON(map[string]any{"type": "Metadata"})
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				if gotAudio.Add(int64(len(data))) == int64(len(data)) {
					send("i love", false, false)
				}
				continue
			}
			var ctl struct{ Type string }
			json.Unmarshal(data, &ctl)
			if ctl.Type == "Finalize" {
				send("i love this", true, true)
			}
		}
	}))
	defer srv.Close()

	d := NewDeepgram("secret", "", srv.URL)
	sess, err := d.NewSession(context.Background(), SessionConfig{Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	updates := make(chan []string, 1)
	go func() { updates <- collect(sess.Updates()) }()

	sess.Feed(make([]byte, streamChunkBytes))
	time.Sleep(100 * time.Millisecond)
	res, err := sess.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.Text != "i love this" {
		t.Errorf("Text = %q, want %q", res.Text, "i love this")
	}
	if auth := <-authCh; auth != "Token secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if gotAudio.Load() != int64(streamChunkBytes) {
		t.Errorf("server got %d audio bytes", gotAudio.Load())
	}
	if u := <-updates; len(u) == 0 || u[0] != "i love" {
		t.Errorf("updates = %q, want interim first", u)
	}
}

func TestDeepgramStreamErrorMessage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "Error", "message": "insufficient credits"})
		conn.ReadMessage()
	}))
	defer srv.Close()

	sess, err := NewDeepgram("k", "", srv.URL).NewSession(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatal(err)
	}
	go collect(sess.Updates())
	select {
	case <-sess.Failed():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not fail")
	}
	if _, err := sess.Close(); err == nil || !strings.Contains(err.Error(), "insufficient credits") {
		t.Errorf("Close err = %v", err)
	}
}

func TestGroqBatchSession(t *testing.T) {
	var gotLang, gotModel, gotAuth string
	var gotMagic string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLang = r.FormValue("language")
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err == nil {
			head := make([]byte, 4)
			io.ReadFull(f, head)
			gotMagic = string(head)
		}
		w.Header().Set("x-ratelimit-remaining-requests", "99")
		w.Header().Set("x-ratelimit-limit-requests", "100")
		w.Write([]byte(`{"text":" so happy today ","duration":1.2}`))
	}))
	defer srv.Close()

	g := NewGroq("gk", "", srv.URL)
	sess, err := g.NewSession(context.Background(), SessionConfig{Language: "en-US"})
	if err != nil {
		t.Fatal(err)
	}
	sess.Feed(make([]byte, 16000))
	res, err := sess.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.Text != "so happy today" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.RateLimit != "99/100" {
		t.Errorf("RateLimit = %q", res.RateLimit)
	}
	if gotLang != "en" || gotModel != groqModel || gotAuth != "Bearer gk" {
		t.Errorf("request lang=%q model=%q auth=%q", gotLang, gotModel, gotAuth)
	}
	if gotMagic != "fLaC" {
		t.Errorf("upload is not FLAC, magic %q", gotMagic)
	}
	if res.Batch == nil || res.Batch.AudioLengthS < 0.49 {
		t.Errorf("batch stats = %+v", res.Batch)
	}
}

func TestGroqAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sess, _ := NewGroq("gk", "", srv.URL).NewSession(context.Background(), SessionConfig{})
	sess.Feed(make([]byte, 3200))
	if _, err := sess.Close(); err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want 429", err)
	}
}

func TestFakeTranscriberScript(t *testing.T) {
	f := NewFake("final words", nil).WithPartials("fin", "final")
	sess, err := f.NewSession(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	res, err := sess.Close()
	if err != nil {
		t.Fatal(err)
	}
	got := collect(sess.Updates())
	want := []string{"fin", "final", "final words"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("updates = %q, want %q", got, want)
	}
	if res.Text != "final words" || f.Sessions() != 1 {
		t.Errorf("res=%+v sessions=%d", res, f.Sessions())
	}
}

func TestFakeTranscriberMidStreamError(t *testing.T) {
	boom := errors.New("recognizer crashed")
	f := NewFake("", nil).WithPartials("a").WithMidStreamError(boom)
	sess, _ := f.NewSession(context.Background(), SessionConfig{})
	select {
	case <-sess.Failed():
	case <-time.After(time.Second):
		t.Fatal("Failed not closed")
	}
	if _, err := sess.Close(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
