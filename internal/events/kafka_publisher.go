package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageWriter is the subset of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes booking events to a Kafka topic
type KafkaPublisher struct {
	writer     messageWriter
	topic      string
	maxRetries int
	backoff    time.Duration
	logger     *logrus.Logger
}

// NewKafkaPublisher creates a publisher for the configured brokers and topic
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(writer, cfg.BookingEventsTopic, cfg.PublishRetries, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, maxRetries int, logger *logrus.Logger) *KafkaPublisher {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &KafkaPublisher{
		writer:     writer,
		topic:      topic,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		logger:     logger,
	}
}

// BookingConfirmed publishes the event keyed by booking id, retrying with linear backoff
func (p *KafkaPublisher) BookingConfirmed(ctx context.Context, event BookingConfirmedEvent) error {
	if event.Type == "" {
		event.Type = EventTypeBookingConfirmed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.BookingID.String()),
		Value: data,
		Time:  time.Now(),
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if lastErr = p.writer.WriteMessages(ctx, message); lastErr == nil {
			p.logger.WithFields(logrus.Fields{
				"topic":      p.topic,
				"booking_id": event.BookingID,
			}).Debug("Booking event published")
			return nil
		}

		p.logger.WithError(lastErr).WithFields(logrus.Fields{
			"topic":      p.topic,
			"booking_id": event.BookingID,
			"attempt":    attempt,
		}).Warn("Failed to publish booking event")

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("failed to publish booking event: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * p.backoff):
			}
		}
	}

	return fmt.Errorf("failed to publish booking event after %d attempts: %w", p.maxRetries, lastErr)
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs events. Used when no brokers are configured.
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// BookingConfirmed implements Publisher
func (p *LogPublisher) BookingConfirmed(_ context.Context, event BookingConfirmedEvent) error {
	p.logger.WithFields(logrus.Fields{
		"booking_id":   event.BookingID,
		"traveler_id":  event.TravelerID,
		"trip_id":      event.TripID,
		"participants": event.Participants,
		"amount_paid":  event.AmountPaid,
		"needs_review": event.NeedsReview,
	}).Info("Booking confirmed (no broker configured)")
	return nil
}

// Close implements Publisher
func (p *LogPublisher) Close() error {
	return nil
}
