package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/dtc-configurator/internal/circuitbreaker"
	"github.com/jogardn/dtc-configurator/internal/metrics"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:         "order-1",
		UserID:     "user-1",
		ProductID:  "model-y",
		Status:     models.StatusPending,
		TotalPrice: decimal.RequireFromString("52490"),
	}
}

func newTestProducer(t *testing.T, maxFailures int) (*KafkaProducer, *mocks.SyncProducer, *metrics.Metrics) {
	t.Helper()
	logger := testLogger()
	mock := mocks.NewSyncProducer(t, NewProducerConfig())
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "kafka",
		MaxFailures: maxFailures,
		OpenTimeout: time.Minute,
	}, logger)
	m := metrics.New()
	return NewKafkaProducerWith(mock, "order-events", breaker, m, logger), mock, m
}

func TestPublishWritesKeyedEnvelope(t *testing.T) {
	p, mock, m := newTestProducer(t, 3)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewOrderCreated(sampleOrder(), at)

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "order-events" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "order-1" {
			return errors.New("wrong key " + string(key))
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(TypeOrderCreated) {
			return errors.New("missing event type header")
		}
		value, _ := msg.Value.Encode()
		var got Event
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.ID != e.ID || got.Status != models.StatusPending || !got.TotalPrice.Equal(decimal.NewFromInt(52490)) {
			return errors.New("unexpected payload " + string(value))
		}
		return nil
	})

	require.NoError(t, p.Publish(context.Background(), e))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("order.created", "ok")))
	require.NoError(t, p.Close())
}

func TestPublishFailureOpensBreaker(t *testing.T) {
	p, mock, m := newTestProducer(t, 2)
	ctx := context.Background()
	e := NewStatusChanged(sampleOrder(), models.StatusConfirmed, time.Now())

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	assert.ErrorIs(t, p.Publish(ctx, e), sarama.ErrOutOfBrokers)
	assert.ErrorIs(t, p.Publish(ctx, e), sarama.ErrOutOfBrokers)
	assert.ErrorIs(t, p.Publish(ctx, e), circuitbreaker.ErrOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("order.status_changed", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("order.status_changed", "rejected")))
	require.NoError(t, p.Close())
}

func TestEventConstructors(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("PST", -8*3600))
	o := sampleOrder()
	o.Status = models.StatusShipped

	created := NewOrderCreated(o, at)
	changed := NewStatusChanged(o, models.StatusConfirmed, at)

	assert.Equal(t, TypeOrderCreated, created.Type)
	assert.Empty(t, created.PreviousStatus)
	assert.Equal(t, time.UTC, created.OccurredAt.Location())
	assert.Equal(t, TypeOrderStatusChanged, changed.Type)
	assert.Equal(t, models.StatusConfirmed, changed.PreviousStatus)
	assert.Equal(t, models.StatusShipped, changed.Status)
	assert.NotEqual(t, created.ID, changed.ID)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), NewOrderCreated(sampleOrder(), time.Now())))
	assert.NoError(t, p.Close())
}

type stalledSyncProducer struct {
	sarama.SyncProducer
	release chan struct{}
}

func (p *stalledSyncProducer) SendMessage(*sarama.ProducerMessage) (int32, int64, error) {
	<-p.release
	return 0, 0, nil
}

func TestPublishGivesUpAtDeadline(t *testing.T) {
	logger := testLogger()
	stalled := &stalledSyncProducer{release: make(chan struct{})}
	t.Cleanup(func() { close(stalled.release) })
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "kafka", MaxFailures: 1, OpenTimeout: time.Minute}, logger)
	m := metrics.New()
	p := NewKafkaProducerWith(stalled, "order-events", breaker, m, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, NewOrderCreated(sampleOrder(), time.Now()))
	assert.ErrorIs(t, err, ErrSendTimeout)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, circuitbreaker.StateOpen, breaker.State(), "a stalled broker counts as a failure")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("order.created", "error")))
}

func TestProducerConfigBoundsBrokerWait(t *testing.T) {
	config := NewProducerConfig()
	assert.Equal(t, 5*time.Second, config.Producer.Timeout)
	assert.NoError(t, config.Validate())
}
