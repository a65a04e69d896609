package transcriber

import "context"

// Unavailable is used when no recognizer could be built. Sessions fail with
// the cause, which the capture adapter reports like any dial error.
type Unavailable struct {
	baseTranscriber
	err error
}

func NewUnavailable(err error) *Unavailable { return &Unavailable{err: err} }

func (u *Unavailable) Name() string { return "unavailable" }

func (u *Unavailable) Err() error { return u.err }

func (u *Unavailable) NewSession(context.Context, SessionConfig) (Session, error) {
	return nil, u.err
}
