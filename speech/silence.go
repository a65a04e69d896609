package speech

import (
	"sync"
	"time"

	"moodmic/audio"
)

const (
	tickInterval     = 100 * time.Millisecond
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // hysteresis: clearing needs more speech than warning

	meterFrameBytes  = audio.SampleRate * 20 / 1000 * audio.BytesPerSample
	voiceLevel       = 0.02
	voicedFrameRatio = 0.3
)

type SilenceEvent int

const (
	SilenceNone  SilenceEvent = iota
	SilenceWarn               // no voice for the warn window
	SilenceClear              // speech resumed after a warning
	SilenceStop               // stop window elapsed without enough speech
)

// silenceMonitor keeps a ring of per-tick voice flags covering the stop
// window.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	autoStop bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
}

func newSilenceMonitor(warnAfter, stopAfter time.Duration, autoStop bool) *silenceMonitor {
	warnAt := max(int(warnAfter/tickInterval), 1)
	windowSz := max(int(stopAfter/tickInterval), warnAt)
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		autoStop: autoStop,
		window:   make([]bool, windowSz),
	}
}

// ratio of voiced ticks among the last n.
func (m *silenceMonitor) ratio(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	if m.autoStop && m.ticks >= m.windowSz &&
		float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return SilenceStop
	}

	r := m.ratio(m.warnAt)
	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceClear
	}
	return SilenceNone
}

// voiceMeter classifies 20 ms frames as voiced by RMS level and reports, once
// per tick, whether enough of them were.
type voiceMeter struct {
	mu     sync.Mutex
	buf    []byte
	frames int
	voiced int
}

func (v *voiceMeter) Process(pcm []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buf = append(v.buf, pcm...)
	for len(v.buf) >= meterFrameBytes {
		if audio.Level(v.buf[:meterFrameBytes]) >= voiceLevel {
			v.voiced++
		}
		v.frames++
		v.buf = v.buf[meterFrameBytes:]
	}
}

func (v *voiceMeter) Tick() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	speech := v.frames > 0 && float64(v.voiced)/float64(v.frames) >= voicedFrameRatio
	v.frames, v.voiced = 0, 0
	return speech
}
