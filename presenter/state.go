package presenter

import (
	"moodmic/emotion"
	"moodmic/sentiment"
	"moodmic/speech"
)

type Phase int

const (
	Idle Phase = iota
	Capturing
	Requesting
	Resolved
)

func (p Phase) String() string {
	switch p {
	case Capturing:
		return "capturing"
	case Requesting:
		return "requesting"
	case Resolved:
		return "resolved"
	}
	return "idle"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// State is what a screen renders. Subscribers get copies; Result is never
// mutated after it is set.
type State struct {
	SessionID        string                 `json:"session_id"`
	Phase            Phase                  `json:"phase"`
	Starting         bool                   `json:"starting"`
	Transcript       speech.TranscriptState `json:"transcript"`
	Input            string                 `json:"input"`
	Loading          bool                   `json:"loading"`
	Result           *sentiment.Result      `json:"result,omitempty"`
	Emotion          emotion.Emotion        `json:"emotion"`
	Notice           string                 `json:"notice,omitempty"`
	PermissionPrompt bool                   `json:"permission_prompt"`
}

// Busy reports whether a capture is starting or running, or a request is
// still in flight.
func (s State) Busy() bool { return s.Loading || s.Starting || s.Transcript.Capturing }

func (s State) phase() Phase {
	switch {
	case s.Loading:
		return Requesting
	case s.Transcript.Capturing:
		return Capturing
	case s.Result != nil:
		return Resolved
	}
	return Idle
}
