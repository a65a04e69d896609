//go:build windows

package beep

// No audio playback on Windows.
func play([]int16) {}
