package audio

import (
	"encoding/binary"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	fakeFrameSize = 1024
	fakeChunk     = fakeFrameSize * BytesPerSample
)

// FakeContext replays a fixed PCM buffer instead of opening a microphone.
// With realtime set, chunks are paced at the capture sample rate; otherwise
// the whole buffer is delivered on Start and silence follows.
type FakeContext struct {
	pcm      []byte
	realtime bool
	opened   atomic.Int32
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewToneContext synthesises a 440 Hz tone of the given length and amplitude
// (0..1). Amplitude 0 produces pure silence.
func NewToneContext(d time.Duration, amplitude float64, realtime bool) *FakeContext {
	n := int(d.Seconds() * SampleRate)
	pcm := make([]byte, n*BytesPerSample)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*440*float64(i)/SampleRate)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}
	return &FakeContext{pcm: pcm, realtime: realtime}
}

// Opened reports how many captures have been created.
func (f *FakeContext) Opened() int { return int(f.opened.Load()) }

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.opened.Add(1)
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime, audioDone: make(chan struct{})}, nil
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	audioDone chan struct{}
	doneOnce  sync.Once

	cb       atomic.Pointer[DataCallback]
	mu       sync.Mutex
	stopCh   chan struct{}
	feedDone chan struct{}
	closed   atomic.Bool
}

// AudioDone is closed once the whole buffer has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

// Closed reports whether Close has been called.
func (f *FakeCapture) Closed() bool { return f.closed.Load() }

func (f *FakeCapture) SetCallback(cb DataCallback) { f.cb.Store(&cb) }
func (f *FakeCapture) ClearCallback()              { f.cb.Store(nil) }
func (f *FakeCapture) DeviceName() string          { return "fake" }

func (f *FakeCapture) emit(chunk []byte) {
	if cb := f.cb.Load(); cb != nil {
		(*cb)(chunk, uint32(len(chunk)/BytesPerSample))
	}
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopCh != nil {
		return nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	f.stopCh, f.feedDone = stop, done

	interval := time.Millisecond
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / SampleRate
	}

	go func() {
		defer close(done)
		silence := make([]byte, fakeChunk)
		pos := 0
		for {
			if pos < len(f.pcm) {
				end := min(pos+fakeChunk, len(f.pcm))
				chunk := make([]byte, end-pos)
				copy(chunk, f.pcm[pos:end])
				f.emit(chunk)
				pos = end
				if !f.realtime {
					continue
				}
			} else {
				f.doneOnce.Do(func() { close(f.audioDone) })
				f.emit(silence)
			}
			select {
			case <-stop:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop, done := f.stopCh, f.feedDone
	f.stopCh, f.feedDone = nil, nil
	f.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.closed.Store(true)
}
