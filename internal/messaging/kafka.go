package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/pkg/models"
)

// EngagementRecorded mirrors one accepted engagement batch onto the
// analytics stream.
type EngagementRecorded struct {
	UserID     string                   `json:"user_id"`
	Events     []models.EngagementEvent `json:"events"`
	RecordedAt time.Time                `json:"recorded_at"`
}

// FeedServed mirrors one feed response: which links went out, in order.
type FeedServed struct {
	UserID          string    `json:"user_id"`
	FeedRequestID   string    `json:"feed_request_id"`
	SessionID       string    `json:"session_id,omitempty"`
	Category        string    `json:"category"`
	ServedLinkIDs   []string  `json:"served_link_ids"`
	CandidateCount  int       `json:"candidate_count"`
	RerankerApplied bool      `json:"reranker_applied"`
	ServedAt        time.Time `json:"served_at"`
}

// EventStream publishes engagement and feed-serving facts to Kafka for
// offline analytics. It is never on a request-critical path: publishes
// run in the background, time out after two seconds, and failures are
// logged and dropped. With no brokers configured every publish is a
// no-op.
type EventStream struct {
	engagementWriter *kafka.Writer
	feedWriter       *kafka.Writer
	logger           *logrus.Logger
}

func NewEventStream(cfg *config.Config, logger *logrus.Logger) *EventStream {
	s := &EventStream{logger: logger}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("Kafka not configured; analytics stream disabled")
		return s
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:  kafka.TCP(cfg.Kafka.Brokers...),
			Topic: topic,
			// Key by user id so one user's events stay ordered per partition.
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}
	}

	s.engagementWriter = newWriter(cfg.Kafka.Topics.EngagementRaw)
	s.feedWriter = newWriter(cfg.Kafka.Topics.FeedServed)
	logger.WithField("brokers", cfg.Kafka.Brokers).Info("Kafka analytics stream enabled")
	return s
}

func (s *EventStream) Enabled() bool {
	return s.engagementWriter != nil
}

func (s *EventStream) PublishEngagement(userID string, events []models.EngagementEvent) {
	if s.engagementWriter == nil {
		return
	}
	s.publish(s.engagementWriter, userID, EngagementRecorded{
		UserID:     userID,
		Events:     events,
		RecordedAt: time.Now(),
	})
}

func (s *EventStream) PublishFeedServed(event FeedServed) {
	if s.feedWriter == nil {
		return
	}
	if event.ServedAt.IsZero() {
		event.ServedAt = time.Now()
	}
	s.publish(s.feedWriter, event.UserID, event)
}

func (s *EventStream) publish(writer *kafka.Writer, key string, payload interface{}) {
	value, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to marshal analytics event")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		message := kafka.Message{
			Key:   []byte(key),
			Value: value,
		}
		if err := writer.WriteMessages(ctx, message); err != nil {
			s.logger.WithError(err).WithField("topic", writer.Topic).Warn("Failed to publish analytics event")
		}
	}()
}

func (s *EventStream) Close() {
	for _, w := range []*kafka.Writer{s.engagementWriter, s.feedWriter} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close Kafka writer")
		}
	}
}
