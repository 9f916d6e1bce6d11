package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sliceSource replays fixed messages and records which ones the handler accepted
type sliceSource struct {
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (s *sliceSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range s.messages {
		if err := handler(ctx, msg); err != nil {
			continue
		}
		s.committed = append(s.committed, msg.Offset)
	}
	return nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type recordingApplier struct {
	events []*models.OrderPaidEvent
	err    error
}

func (a *recordingApplier) ApplyOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, e)
	return nil
}

func encode(t *testing.T, offset int64, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func TestStockCacheWorkerAppliesPaidOrders(t *testing.T) {
	util.SetLogger(zap.NewNop())

	source := &sliceSource{messages: []kafka.Message{
		encode(t, 1, models.OrderCreatedEvent{BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderCreated}, OrderID: "o-1"}),
		encode(t, 2, models.OrderPaidEvent{BaseEvent: models.BaseEvent{EventID: "e2", EventType: models.EventTypeOrderPaid}, OrderID: "o-1"}),
		encode(t, 3, models.OrderCancelledEvent{BaseEvent: models.BaseEvent{EventID: "e3", EventType: models.EventTypeOrderCancelled}, OrderID: "o-2"}),
	}}
	applier := &recordingApplier{}

	w := NewStockCacheWorker(source, applier)
	require.NoError(t, w.Start(context.Background()))

	require.Len(t, applier.events, 1)
	assert.Equal(t, "o-1", applier.events[0].OrderID)
	assert.Equal(t, []int64{1, 2, 3}, source.committed)

	require.NoError(t, w.Stop())
	assert.True(t, source.closed)
}

func TestStockCacheWorkerLeavesFailedEventsUncommitted(t *testing.T) {
	util.SetLogger(zap.NewNop())

	source := &sliceSource{messages: []kafka.Message{
		encode(t, 7, models.OrderPaidEvent{BaseEvent: models.BaseEvent{EventID: "e7", EventType: models.EventTypeOrderPaid}, OrderID: "o-7"}),
	}}

	w := NewStockCacheWorker(source, &recordingApplier{err: errors.New("redis down")})
	require.NoError(t, w.Start(context.Background()))
	assert.Empty(t, source.committed)
}
