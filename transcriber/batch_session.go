package transcriber

import (
	"context"
	"strings"
	"sync"

	"moodmic/encoder"
	"moodmic/log"
)

type transcribeFunc func(ctx context.Context, flac []byte) (*Result, error)

// batchSession buffers the whole utterance and uploads it as FLAC on Close.
// It never produces interim text.
type batchSession struct {
	ctx        context.Context
	provider   string
	transcribe transcribeFunc
	updates    chan string
	failed     chan struct{}

	mu  sync.Mutex
	pcm []byte
}

func newBatchSession(ctx context.Context, provider string, transcribe transcribeFunc) *batchSession {
	return &batchSession{
		ctx:        ctx,
		provider:   provider,
		transcribe: transcribe,
		updates:    make(chan string, 1),
		failed:     make(chan struct{}),
	}
}

func (bs *batchSession) Feed(pcm []byte) {
	bs.mu.Lock()
	bs.pcm = append(bs.pcm, pcm...)
	bs.mu.Unlock()
}

func (bs *batchSession) Updates() <-chan string { return bs.updates }

func (bs *batchSession) Failed() <-chan struct{} { return bs.failed }

func (bs *batchSession) Close() (SessionResult, error) {
	defer close(bs.updates)

	bs.mu.Lock()
	pcm := bs.pcm
	bs.pcm = nil
	bs.mu.Unlock()

	enc, err := encoder.EncodePCM(pcm)
	if err != nil {
		return SessionResult{}, err
	}

	result, err := bs.transcribe(bs.ctx, enc.Data)
	if err != nil {
		return SessionResult{}, err
	}

	text := strings.TrimSpace(result.Text)
	if text != "" {
		bs.updates <- text
	}

	rawSize := len(pcm)
	compressionPct := 0.0
	if rawSize > 0 {
		compressionPct = (1.0 - float64(len(enc.Data))/float64(rawSize)) * 100
	}
	net := result.Metrics
	if net == nil {
		net = &NetworkMetrics{}
	}
	stats := &BatchStats{
		AudioLengthS:     float64(enc.Frames) / float64(encoder.SampleRate),
		RawSizeKB:        float64(rawSize) / 1024,
		CompressedSizeKB: float64(len(enc.Data)) / 1024,
		CompressionPct:   compressionPct,
		EncodeTimeMs:     float64(enc.EncodeTime.Milliseconds()),
		TTFBMs:           float64(net.TTFB.Milliseconds()),
		TotalTimeMs:      float64(net.Sum().Milliseconds()),
		ConnReused:       net.ConnReused,
		Confidence:       result.Confidence,
	}
	log.BatchMetrics(log.BatchMetricsData{
		Provider:         bs.provider,
		AudioLengthS:     stats.AudioLengthS,
		RawSizeKB:        stats.RawSizeKB,
		CompressedSizeKB: stats.CompressedSizeKB,
		EncodeTimeMs:     stats.EncodeTimeMs,
		TTFBMs:           stats.TTFBMs,
		TotalTimeMs:      stats.TotalTimeMs,
		ConnReused:       stats.ConnReused,
	})

	return SessionResult{
		Text:      text,
		HasText:   text != "",
		RateLimit: result.RateLimit,
		Batch:     stats,
	}, nil
}
