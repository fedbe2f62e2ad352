package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// EmailSender delivers booking notifications to travelers
type EmailSender interface {
	SendBookingConfirmation(ctx context.Context, event BookingConfirmedEvent) error
}

// LogEmailSender writes the message to the log instead of sending it
type LogEmailSender struct {
	logger *logrus.Logger
}

// NewLogEmailSender creates a LogEmailSender
func NewLogEmailSender(logger *logrus.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

// SendBookingConfirmation implements EmailSender
func (s *LogEmailSender) SendBookingConfirmation(_ context.Context, event BookingConfirmedEvent) error {
	if event.TravelerEmail == "" {
		return fmt.Errorf("booking %s has no traveler email", event.BookingID)
	}
	s.logger.WithFields(logrus.Fields{
		"to":           event.TravelerEmail,
		"booking_id":   event.BookingID,
		"trip":         event.TripTitle,
		"participants": event.Participants,
		"amount":       fmt.Sprintf("%.2f %s", event.AmountPaid, event.Currency),
	}).Info("Sending booking confirmation email")
	return nil
}

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads booking events and hands them to the email sender
type Consumer struct {
	reader messageReader
	sender EmailSender
	logger *logrus.Logger
}

// NewConsumer creates a consumer group reader for the booking events topic
func NewConsumer(cfg config.KafkaConfig, sender EmailSender, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.BookingEventsTopic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
	return &Consumer{reader: reader, sender: sender, logger: logger}
}

// Run consumes until ctx is cancelled. Offsets are committed after the handler runs;
// malformed messages are logged and skipped so they don't block the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Failed to handle booking event")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var event BookingConfirmedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	switch event.Type {
	case EventTypeBookingConfirmed:
		return c.sender.SendBookingConfirmation(ctx, event)
	default:
		c.logger.WithField("type", event.Type).Debug("Ignoring unknown event type")
		return nil
	}
}

// Close closes the reader
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
