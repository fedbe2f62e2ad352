package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/adventuretogether/booking-backend/internal/events"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg := config.FromEnv()

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the notifier")
	}

	consumer := events.NewConsumer(cfg.Kafka, events.NewLogEmailSender(logger), logger)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic":    cfg.Kafka.BookingEventsTopic,
		"group_id": cfg.Kafka.GroupID,
	}).Info("Notifier consuming booking events")

	if err := consumer.Run(ctx); err != nil {
		logger.Fatalf("Notifier stopped: %v", err)
	}

	logger.Info("Notifier exited successfully")
}
