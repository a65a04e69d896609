package audio

import "fmt"

// Unavailable stands in for a platform audio context that failed to start.
// Every capture fails with the original cause, so the app keeps running and
// reports the problem when the user tries to listen.
type Unavailable struct {
	Err error
}

func NewUnavailable(err error) *Unavailable { return &Unavailable{Err: err} }

func (u *Unavailable) Devices() ([]DeviceInfo, error) { return nil, u.Err }

func (u *Unavailable) NewCapture(*DeviceInfo, CaptureConfig) (CaptureDevice, error) {
	return nil, fmt.Errorf("audio unavailable: %w", u.Err)
}

func (u *Unavailable) Close() {}
