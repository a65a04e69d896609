package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStreamSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func dialDeepgram(ctx context.Context, wsURL, apiKey string) (rawStreamSession, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("deepgram connect: %w", err)
	}
	return &deepgramStreamSession{conn: conn}, nil
}

func (s *deepgramStreamSession) write(kind int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(kind, data)
}

func (s *deepgramStreamSession) Send(pcm []byte) error {
	return s.write(websocket.BinaryMessage, pcm)
}

// CloseSend asks the server to flush pending audio. The reply is marked
// from_finalize.
func (s *deepgramStreamSession) CloseSend() error {
	return s.write(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
}

func (s *deepgramStreamSession) Recv() (streamUpdate, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return streamUpdate{}, errors.New("deepgram closed the stream")
			}
			return streamUpdate{}, fmt.Errorf("deepgram read: %w", err)
		}

		var resp deepgramStreamResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		switch resp.Type {
		case "Results":
		case "Error":
			msg := strings.TrimSpace(resp.Message)
			if msg == "" {
				msg = "unknown error"
			}
			return streamUpdate{}, fmt.Errorf("deepgram: %s", msg)
		default:
			// Metadata, SpeechStarted, UtteranceEnd
			continue
		}

		transcript := ""
		if len(resp.Channel.Alternatives) > 0 {
			transcript = resp.Channel.Alternatives[0].Transcript
		}
		return streamUpdate{
			Transcript:   strings.TrimSpace(transcript),
			IsFinal:      resp.IsFinal,
			SpeechFinal:  resp.SpeechFinal,
			FromFinalize: resp.FromFinalize,
		}, nil
	}
}

func (s *deepgramStreamSession) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}
