package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	MaxRetries        = 3
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second
)

// Handler processes one decoded event.
type Handler interface {
	HandleEvent(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, e Event) error { return f(ctx, e) }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; the message goes straight to the
// dead letter topic.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type ConsumerStats struct {
	Processed    int64 `json:"processed"`
	Succeeded    int64 `json:"succeeded"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
	Failed       int64 `json:"failed"`
}

// Consumer reads the order events topic as part of a consumer group. Events
// the handler cannot process after MaxRetries attempts are copied to the
// dead letter topic and the offset is committed either way.
type Consumer struct {
	group    sarama.ConsumerGroup
	dlq      sarama.SyncProducer
	topic    string
	dlqTopic string
	handler  Handler
	logger   *logrus.Logger
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time

	processed, succeeded, retried, deadLettered, failed atomic.Int64
}

func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0
	return config
}

func NewConsumer(brokers []string, groupID, topic string, handler Handler, logger *logrus.Logger) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return newConsumer(group, producer, topic, handler, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, dlq sarama.SyncProducer, topic string, handler Handler, logger *logrus.Logger) *Consumer {
	return &Consumer{
		group:    group,
		dlq:      dlq,
		topic:    topic,
		dlqTopic: DeadLetterTopic(topic),
		handler:  handler,
		logger:   logger,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func DeadLetterTopic(topic string) string { return topic + ".dlq" }

func (c *Consumer) Start(ctx context.Context) error {
	handler := &groupHandler{consumer: c}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		default:
			if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				c.logger.WithError(err).Error("Error consuming from Kafka")
				return err
			}
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.dlq.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close DLQ producer")
	}
	return c.group.Close()
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed:    c.processed.Load(),
		Succeeded:    c.succeeded.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		Failed:       c.failed.Load(),
	}
}

// process handles one message. It returns an error only when ctx ends before
// the message was either handled or dead-lettered.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	c.processed.Add(1)

	handleErr := c.handleWithRetry(ctx, msg)
	if handleErr == nil {
		c.succeeded.Add(1)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.failed.Add(1)
	c.logger.WithError(handleErr).WithFields(logrus.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}).Error("Failed to process message after retries")

	if err := c.deadLetter(ctx, msg, handleErr); err != nil {
		return err
	}
	c.deadLettered.Add(1)
	return nil
}

// deadLetter keeps trying the DLQ with capped backoff so the claim never
// skips past a message that was neither handled nor parked.
func (c *Consumer) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, cause error) error {
	delay := InitialRetryDelay
	for {
		err := c.sendToDLQ(msg, cause)
		if err == nil {
			return nil
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"delay":     delay.String(),
		}).Error("Failed to send message to DLQ")

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
		if delay > MaxRetryDelay {
			delay = MaxRetryDelay
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var e Event
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return Permanent(fmt.Errorf("decode event: %w", err))
	}

	delay := InitialRetryDelay
	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			c.retried.Add(1)
			c.logger.WithFields(logrus.Fields{
				"order_id": e.OrderID,
				"attempt":  attempt,
				"delay":    delay.String(),
			}).Warn("Retrying event")
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			delay *= 2
			if delay > MaxRetryDelay {
				delay = MaxRetryDelay
			}
		}

		if err = c.handler.HandleEvent(ctx, e); err == nil {
			return nil
		}
		if isPermanent(err) {
			return err
		}
	}
	return fmt.Errorf("exhausted retries for order %s: %w", e.OrderID, err)
}

func (c *Consumer) sendToDLQ(msg *sarama.ConsumerMessage, cause error) error {
	dlqMsg := &sarama.ProducerMessage{
		Topic: c.dlqTopic,
		Key:   sarama.ByteEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("original_topic"), Value: []byte(msg.Topic)},
			{Key: []byte("original_partition"), Value: []byte(strconv.Itoa(int(msg.Partition)))},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			{Key: []byte("error"), Value: []byte(cause.Error())},
			{Key: []byte("failed_at"), Value: []byte(c.now().UTC().Format(time.RFC3339))},
		},
	}

	partition, offset, err := c.dlq.SendMessage(dlqMsg)
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"dlq_topic":     c.dlqTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"key":           string(msg.Key),
	}).Warn("Message sent to DLQ")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.consumer.logger.WithFields(logrus.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
				"key":       string(message.Key),
			}).Debug("Received Kafka message")

			if err := h.consumer.process(session.Context(), message); err != nil {
				// The session is ending; leave the offset uncommitted so the
				// message is redelivered.
				return nil
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
