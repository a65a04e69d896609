package speech

// TranscriptState is one snapshot of the capture adapter. Err is a readable
// message, empty when the last operation succeeded.
type TranscriptState struct {
	Capturing bool   `json:"capturing"`
	Text      string `json:"text"`
	Err       string `json:"error,omitempty"`
}

// Failed reports whether the state carries an error.
func (s TranscriptState) Failed() bool { return s.Err != "" }
