package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Capture format shared by every backend and transcriber: 16 kHz mono s16le.
const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
	WAVHeaderSize  = 44
)

var DefaultConfig = CaptureConfig{SampleRate: SampleRate, Channels: Channels}

var headsetHints = []string{
	"airpods", "bluetooth", "buds", "bose", "jabra",
	"wh-1000", "wf-1000", "headset", " bt ", " bt)",
}

// IsBluetooth guesses from the device name whether the input is a wireless
// headset running in low-bandwidth mode.
func IsBluetooth(name string) bool {
	lower := " " + strings.ToLower(name) + " "
	for _, h := range headsetHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // backend specific
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// FindDevice looks a device up by exact name, then by case-insensitive
// substring. An empty name selects the system default (nil).
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q", name)
}

// Level returns the RMS of a s16le buffer normalised to [0,1].
func Level(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
