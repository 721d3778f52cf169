package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/config"
	"github.com/jogardn/dtc-configurator/internal/events"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadAudit(logger)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	consumer, err := events.NewConsumer(cfg.KafkaBrokers, cfg.GroupID, cfg.OrderTopic, events.NewAuditLog(logger), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic":     cfg.OrderTopic,
		"dlq_topic": events.DeadLetterTopic(cfg.OrderTopic),
		"group_id":  cfg.GroupID,
	}).Info("Order audit consumer started")

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Error("Consumer stopped with error")
	}

	logger.WithFields(logrus.Fields{"stats": consumer.Stats()}).Info("Shutting down order audit consumer...")
	if err := consumer.Close(); err != nil {
		logger.WithError(err).Error("Failed to close consumer")
	}
}
