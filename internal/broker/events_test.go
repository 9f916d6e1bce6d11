package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	keys   []string
	events []interface{}
}

func (s *recordingSink) PublishEvent(_ context.Context, key string, event interface{}) error {
	s.keys = append(s.keys, key)
	s.events = append(s.events, event)
	return nil
}

func TestEventPublisherKeysByOrder(t *testing.T) {
	sink := &recordingSink{}
	ep := NewEventPublisher(sink)
	ctx := context.Background()

	require.NoError(t, ep.PublishOrderCreated(ctx, &models.OrderCreatedEvent{OrderID: "o-1"}))
	require.NoError(t, ep.PublishOrderPaid(ctx, &models.OrderPaidEvent{OrderID: "o-1"}))
	require.NoError(t, ep.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{OrderID: "o-2"}))

	assert.Equal(t, []string{"order-o-1", "order-o-1", "order-o-2"}, sink.keys)
}

func TestHandleMessageRoutesOrderPaid(t *testing.T) {
	eh := NewEventHandler()

	var got *models.OrderPaidEvent
	eh.OnOrderPaid(func(_ context.Context, e *models.OrderPaidEvent) error {
		got = e
		return nil
	})

	event := models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeOrderPaid, Timestamp: time.Now()},
		OrderID:   "o-1",
		Items:     []models.OrderItemData{{VariantID: "var-a", Quantity: 2}},
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "o-1", got.OrderID)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestHandleMessagePropagatesHandlerError(t *testing.T) {
	eh := NewEventHandler()
	eh.OnOrderPaid(func(context.Context, *models.OrderPaidEvent) error {
		return errors.New("redis down")
	})

	value, _ := json.Marshal(models.OrderPaidEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderPaid}})
	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
}

func TestHandleMessageSkipsOtherEvents(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnOrderPaid(func(context.Context, *models.OrderPaidEvent) error {
		called = true
		return nil
	})

	value, _ := json.Marshal(models.OrderCreatedEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCreated}})
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.False(t, called)
}
