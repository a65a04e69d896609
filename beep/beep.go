// Package beep plays short audible cues for capture and request events.
package beep

import "math"

var disabled bool

func Disable() { disabled = true }

type Cue int

const (
	CueStart Cue = iota
	CueEnd
	CueResolved
	CueError
)

const sampleRate = 44100

type tone struct {
	freqs    []float64 // played back to back
	duration float64   // per note, seconds
	gap      float64
	volume   float64
	decay    float64
}

var tones = map[Cue]tone{
	CueStart:    {freqs: []float64{1200}, duration: 0.12, volume: 0.5, decay: 60},
	CueEnd:      {freqs: []float64{900}, duration: 0.15, volume: 0.5, decay: 40},
	CueResolved: {freqs: []float64{660, 990}, duration: 0.09, gap: 0.02, volume: 0.4, decay: 30},
	CueError:    {freqs: []float64{350, 350}, duration: 0.08, gap: 0.05, volume: 0.6, decay: 30},
}

// Samples renders a cue as mono s16 at sampleRate.
func Samples(c Cue) []int16 {
	t, ok := tones[c]
	if !ok {
		return nil
	}
	var out []int16
	for i, f := range t.freqs {
		if i > 0 {
			out = append(out, make([]int16, int(sampleRate*t.gap))...)
		}
		out = append(out, generateTick(f, t.duration, t.volume, t.decay)...)
	}
	return out
}

func generateTick(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

// Play starts the cue in the background. Playback errors are ignored;
// a missing sound server should never affect the session.
func Play(c Cue) {
	if disabled {
		return
	}
	samples := Samples(c)
	if len(samples) == 0 {
		return
	}
	go play(samples)
}
