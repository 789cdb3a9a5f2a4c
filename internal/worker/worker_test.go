package worker

import (
	"context"
	"encoding/json"
	"testing"

	"marketplace-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotificationStore struct {
	processed     map[string]bool
	notifications []*models.Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{processed: map[string]bool{}}
}

func (f *fakeNotificationStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeNotificationStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	f.processed[eventID] = true
	return nil
}

func (f *fakeNotificationStore) CreateNotification(_ context.Context, n *models.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func TestOrderValidatedNotifiesSupplier(t *testing.T) {
	store := newFakeNotificationStore()
	w := NewNotificationWorker(nil, store)

	event := &models.OrderValidatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderValidated,
		},
		OrderID:       3,
		SupplierID:    10,
		CustomerName:  "Amine B",
		CustomerPhone: "0550123456",
		TotalItems:    4,
		Status:        models.OrderStatusPending,
	}

	require.NoError(t, w.handleOrderValidated(context.Background(), event))
	require.Len(t, store.notifications, 1)

	n := store.notifications[0]
	assert.Equal(t, models.RecipientSupplier, n.RecipientKind)
	assert.Equal(t, int64(10), n.RecipientID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(n.Payload, &payload))
	assert.Equal(t, "New order #3 received from Amine B", payload["message"])
	assert.Equal(t, float64(4), payload["total_items"])
}

func TestOrderStatusChangedNotifiesCustomer(t *testing.T) {
	store := newFakeNotificationStore()
	w := NewNotificationWorker(nil, store)

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-2",
			EventType: models.EventTypeOrderStatusChanged,
		},
		OrderID:   3,
		UserID:    7,
		OldStatus: models.OrderStatusPending,
		NewStatus: models.OrderStatusDelivered,
	}

	require.NoError(t, w.handleOrderStatusChanged(context.Background(), event))
	require.Len(t, store.notifications, 1)

	n := store.notifications[0]
	assert.Equal(t, models.RecipientCustomer, n.RecipientKind)
	assert.Equal(t, int64(7), n.RecipientID)
}

func TestRedeliveredEventWritesOnce(t *testing.T) {
	store := newFakeNotificationStore()
	w := NewNotificationWorker(nil, store)

	event := &models.OrderValidatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-3",
			EventType: models.EventTypeOrderValidated,
		},
		OrderID:    5,
		SupplierID: 10,
	}

	require.NoError(t, w.handleOrderValidated(context.Background(), event))
	require.NoError(t, w.handleOrderValidated(context.Background(), event))
	assert.Len(t, store.notifications, 1)
}
