package transcriber

type SessionConfig struct {
	Language string
}

type BatchStats struct {
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	CompressionPct   float64
	EncodeTimeMs     float64
	TTFBMs           float64
	TotalTimeMs      float64
	ConnReused       bool
	Confidence       float64
}

type StreamStats struct {
	ConnectMs    float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	CommitEvents int
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
}

type SessionResult struct {
	Text      string
	HasText   bool
	RateLimit string       // "remaining/limit" or empty
	Batch     *BatchStats  // non-nil for batch sessions
	Stream    *StreamStats // non-nil for stream sessions
}

// Session is one recognition pass. Updates carries the full text heard so
// far, interim words included. Failed is closed when the recognizer gives up
// mid-session; Close then returns the cause.
type Session interface {
	Feed(pcm []byte)
	Updates() <-chan string
	Failed() <-chan struct{}
	Close() (SessionResult, error)
}
