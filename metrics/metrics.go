// Package metrics holds the Prometheus instruments of a moodmic session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "moodmic"

// Outcome label values.
const (
	OK     = "ok"
	Failed = "failed"
	Stale  = "stale"
)

type Metrics struct {
	Registry *prometheus.Registry

	ListensStarted prometheus.Counter
	ListensFailed  *prometheus.CounterVec
	Transcripts    prometheus.Counter

	SentimentRequests *prometheus.CounterVec
	SentimentLatency  prometheus.Histogram

	EmotionsShown   *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

// New registers every instrument on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ListensStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listens_started_total",
			Help:      "Captures that opened the microphone",
		}),
		ListensFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listens_failed_total",
			Help:      "Captures that could not start or ended with an error",
		}, []string{"reason"}),
		Transcripts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Captures that ended with non-empty text",
		}),
		SentimentRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentiment_requests_total",
			Help:      "Sentiment requests by outcome",
		}, []string{"outcome"}),
		SentimentLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sentiment_request_seconds",
			Help:      "Latency of sentiment requests",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		EmotionsShown: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emotions_shown_total",
			Help:      "Emotions displayed, by emotion",
		}, []string{"emotion"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mood_events_published_total",
			Help:      "Mood events handed to the publisher, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) RecordListenStarted() { m.ListensStarted.Inc() }

func (m *Metrics) RecordListenFailed(reason string) { m.ListensFailed.WithLabelValues(reason).Inc() }

func (m *Metrics) RecordTranscript() { m.Transcripts.Inc() }

func (m *Metrics) RecordSentiment(outcome string, d time.Duration) {
	m.SentimentRequests.WithLabelValues(outcome).Inc()
	if outcome != Stale {
		m.SentimentLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordEmotion(emotion string) { m.EmotionsShown.WithLabelValues(emotion).Inc() }

func (m *Metrics) RecordPublish(err error) {
	outcome := OK
	if err != nil {
		outcome = Failed
	}
	m.EventsPublished.WithLabelValues(outcome).Inc()
}
