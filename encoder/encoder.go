package encoder

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Samples converts little-endian s16 PCM to samples. A trailing odd byte is
// dropped.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Result is a finished encoding together with its cost.
type Result struct {
	Data       []byte
	Frames     uint64
	EncodeTime time.Duration
}

// EncodePCM compresses a whole s16le mono buffer to FLAC.
func EncodePCM(pcm []byte) (Result, error) {
	start := time.Now()
	enc, err := NewFlac()
	if err != nil {
		return Result{}, err
	}
	samples := Samples(pcm)
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return Result{}, fmt.Errorf("block at %d: %w", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		return Result{}, fmt.Errorf("closing flac stream: %w", err)
	}
	return Result{Data: enc.Bytes(), Frames: enc.TotalFrames(), EncodeTime: time.Since(start)}, nil
}
