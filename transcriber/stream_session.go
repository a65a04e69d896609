package transcriber

import (
	"strings"
	"sync"
	"time"

	"moodmic/encoder"
	"moodmic/log"
)

const (
	streamChunkMs      = 100
	streamChunkBytes   = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 150 * time.Millisecond
	streamFinalizeMax  = 1500 * time.Millisecond
	streamDrainMax     = 2 * time.Second
)

// rawStreamSession is the provider side of a streaming session.
type rawStreamSession interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

type streamSession struct {
	provider  string
	raw       rawStreamSession
	committed string
	interim   string
	audioCh   chan []byte
	updates   chan string
	failed    chan struct{}
	startedAt time.Time
	connected chan struct{} // closed once dial returns

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedBuf []byte
	feedMu  sync.Mutex

	mu      sync.Mutex
	err     error
	errOnce sync.Once
	closing bool
	stats   streamStats
}

type streamStats struct {
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	CommitEvents int
	FinalizeWait time.Duration
	SessionDur   time.Duration
}

func (s streamStats) audioDuration() float64 {
	return float64(s.SentBytes) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8))
}

func newStreamSession(provider string, dial func() (rawStreamSession, error)) *streamSession {
	ss := &streamSession{
		provider:  provider,
		audioCh:   make(chan []byte, 128),
		updates:   make(chan string, 16),
		failed:    make(chan struct{}),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		connected: make(chan struct{}),
	}

	go func() {
		connectStart := time.Now()
		raw, err := dial()
		ss.mu.Lock()
		ss.stats.ConnectDur = time.Since(connectStart)
		ss.mu.Unlock()

		if err != nil {
			ss.setErr(err)
			close(ss.sendDone)
			close(ss.recvDone)
			close(ss.connected)
			return
		}

		ss.mu.Lock()
		ss.raw = raw
		ss.mu.Unlock()
		close(ss.connected)
		go ss.runSender()
		go ss.runReceiver()
	}()

	return ss
}

func (s *streamSession) Feed(pcm []byte) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.feedMu.Lock()
	s.feedBuf = append(s.feedBuf, pcm...)
	var chunks [][]byte
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		chunks = append(chunks, chunk)
	}
	s.feedMu.Unlock()

	for _, chunk := range chunks {
		select {
		case s.audioCh <- chunk:
		case <-s.failed:
			return
		}
	}
}

func (s *streamSession) Updates() <-chan string { return s.updates }

func (s *streamSession) Failed() <-chan struct{} { return s.failed }

func (s *streamSession) Close() (SessionResult, error) {
	<-s.connected

	s.mu.Lock()
	connErr := s.err
	raw := s.raw
	s.mu.Unlock()
	if raw == nil {
		s.feedMu.Lock()
		s.feedBuf = nil
		s.feedMu.Unlock()
		close(s.audioCh)
		close(s.updates)
		return SessionResult{}, connErr
	}

	s.feedMu.Lock()
	if len(s.feedBuf) > 0 && connErr == nil {
		tail := make([]byte, len(s.feedBuf))
		copy(tail, s.feedBuf)
		select {
		case s.audioCh <- tail:
		case <-s.failed:
		}
	}
	s.feedBuf = nil
	s.feedMu.Unlock()
	close(s.audioCh)
	finalizeStart := time.Now()

	<-s.sendDone

	select {
	case <-s.finalized:
		time.Sleep(streamFinalizeIdle)
	case <-s.failed:
	case <-time.After(streamFinalizeMax):
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	raw.Close()
	select {
	case <-s.recvDone:
	case <-time.After(streamDrainMax):
		log.Warn("stream receiver drain timeout")
	}

	s.mu.Lock()
	text := strings.TrimSpace(s.committed)
	stats := s.stats
	stats.FinalizeWait = time.Since(finalizeStart)
	stats.SessionDur = time.Since(s.startedAt)
	sessionErr := s.err
	s.mu.Unlock()

	// The consumer must see the committed text even if an earlier
	// non-blocking send was dropped.
	if text != "" {
		select {
		case s.updates <- text:
		default:
		}
	}
	close(s.updates)

	st := &StreamStats{
		ConnectMs:    float64(stats.ConnectDur.Milliseconds()),
		SentChunks:   stats.SentChunks,
		SentKB:       float64(stats.SentBytes) / 1024,
		RecvMessages: stats.RecvMessages,
		RecvFinal:    stats.RecvFinal,
		RecvInterim:  stats.RecvInterim,
		CommitEvents: stats.CommitEvents,
		FinalizeMs:   float64(stats.FinalizeWait.Milliseconds()),
		TotalMs:      float64(stats.SessionDur.Milliseconds()),
		AudioS:       stats.audioDuration(),
	}
	log.StreamMetrics(log.StreamMetricsData{
		Provider:     s.provider,
		ConnectMs:    st.ConnectMs,
		FinalizeMs:   st.FinalizeMs,
		TotalMs:      st.TotalMs,
		AudioS:       st.AudioS,
		SentChunks:   st.SentChunks,
		SentKB:       st.SentKB,
		RecvMessages: st.RecvMessages,
		RecvFinal:    st.RecvFinal,
		CommitEvents: st.CommitEvents,
	})

	return SessionResult{Text: text, HasText: text != "", Stream: st}, sessionErr
}

func (s *streamSession) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.raw.Send(chunk); err != nil {
			s.setErr(err)
			for range s.audioCh {
			}
			return
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if err := s.raw.CloseSend(); err != nil {
		s.setErr(err)
	}
}

func (s *streamSession) runReceiver() {
	defer close(s.recvDone)
	for {
		update, err := s.raw.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.setErr(err)
			}
			return
		}

		if update.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		isFinal := update.IsFinal || update.SpeechFinal || update.FromFinalize
		transcript := strings.TrimSpace(update.Transcript)

		s.mu.Lock()
		s.stats.RecvMessages++
		if isFinal {
			s.stats.RecvFinal++
		} else {
			s.stats.RecvInterim++
		}
		switch {
		case isFinal && transcript != "":
			s.committed = joinWords(s.committed, transcript)
			s.interim = ""
			s.stats.CommitEvents++
		case isFinal:
			s.interim = ""
		default:
			s.interim = transcript
		}
		fullText := joinWords(s.committed, s.interim)
		s.mu.Unlock()

		if fullText == "" {
			continue
		}
		select {
		case s.updates <- fullText:
		default:
		}
	}
}

// setErr records the first error and tears the connection down.
func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		raw := s.raw
		s.mu.Unlock()
		close(s.failed)
		if raw != nil {
			raw.Close()
		}
	})
}

func joinWords(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
