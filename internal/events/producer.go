package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/circuitbreaker"
	"github.com/jogardn/dtc-configurator/internal/metrics"
)

const headerEventType = "event_type"

// ErrSendTimeout is returned when the broker did not acknowledge a message
// before the caller's deadline.
var ErrSendTimeout = errors.New("kafka send did not finish before the deadline")

// NewProducerConfig returns the sarama settings used for every producer.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 5 * time.Second
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0
	return config
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers []string, topic string, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *logrus.Logger) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaProducerWith(producer, topic, breaker, m, logger), nil
}

// NewKafkaProducerWith wraps an existing sarama producer.
func NewKafkaProducerWith(producer sarama.SyncProducer, topic string, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *logrus.Logger) *KafkaProducer {
	return &KafkaProducer{
		producer: producer,
		topic:    topic,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.OrderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(e.Type)},
		},
	}

	var partition int32
	var offset int64
	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		partition, offset, sendErr = p.send(ctx, msg)
		return sendErr
	})

	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		p.metrics.EventsPublished.WithLabelValues(string(e.Type), "rejected").Inc()
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	case err != nil:
		p.metrics.EventsPublished.WithLabelValues(string(e.Type), "error").Inc()
		p.logger.WithError(err).WithField("order_id", e.OrderID).Error("Failed to send message to Kafka")
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}

	p.metrics.EventsPublished.WithLabelValues(string(e.Type), "ok").Inc()
	p.logger.WithFields(logrus.Fields{
		"topic":      p.topic,
		"partition":  partition,
		"offset":     offset,
		"order_id":   e.OrderID,
		"event_type": e.Type,
	}).Info("Event published to Kafka")
	return nil
}

type sendResult struct {
	partition int32
	offset    int64
	err       error
}

// send waits for the broker until ctx is done. A message still in flight at
// that point is left to finish in the background.
func (p *KafkaProducer) send(ctx context.Context, msg *sarama.ProducerMessage) (int32, int64, error) {
	done := make(chan sendResult, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		done <- sendResult{partition: partition, offset: offset, err: err}
	}()

	select {
	case r := <-done:
		return r.partition, r.offset, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, 0, ErrSendTimeout
		}
		return 0, 0, ctx.Err()
	}
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
