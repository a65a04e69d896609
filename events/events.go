package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"moodmic/log"
)

// MoodEvent is published once per resolved sentiment request.
type MoodEvent struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"`
	Emotion   string    `json:"emotion"`
	At        time.Time `json:"at"`
}

type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes mood events to Kafka keyed by session id. When disabled
// it only logs them.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	logger  zerolog.Logger
}

func NewPublisher(cfg Config) *Publisher {
	logger := log.Component("events")
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("kafka publishing disabled, mood events are logged only")
		return &Publisher{topic: cfg.Topic, logger: logger}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			Dial: (&kafka.Dialer{Timeout: 5 * time.Second}).DialFunc,
		},
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka publisher ready")
	return &Publisher{writer: w, topic: cfg.Topic, enabled: true, logger: logger}
}

func (p *Publisher) Enabled() bool { return p.enabled }

func (p *Publisher) Publish(ctx context.Context, ev MoodEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal mood event: %w", err)
	}
	if !p.enabled {
		p.logger.Debug().RawJSON("event", value).Msg("mood event")
		return nil
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("mood.resolved")},
		},
	})
	if err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Msg("publish failed")
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
