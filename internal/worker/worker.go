package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace-order-service/internal/broker"
	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/util"

	"go.uber.org/zap"
)

// NotificationStore is the persistence surface the dispatcher needs.
// *store.Store is the production implementation.
type NotificationStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// NotificationWorker consumes order events and persists notification
// rows: suppliers hear about validated carts, customers about status
// changes. Delivery is at-least-once; processed event IDs make the
// writes idempotent.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        NotificationStore
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, store NotificationStore) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderValidated(w.handleOrderValidated)
	eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderValidated(ctx context.Context, event *models.OrderValidatedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":    event.OrderID,
		"message":     fmt.Sprintf("New order #%d received from %s", event.OrderID, event.CustomerName),
		"total_items": event.TotalItems,
		"status":      event.Status,
		"phone":       event.CustomerPhone,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	notification := &models.Notification{
		RecipientKind: models.RecipientSupplier,
		RecipientID:   event.SupplierID,
		EventType:     event.EventType,
		Payload:       payload,
	}
	if err := w.store.CreateNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to create supplier notification: %w", err)
	}

	util.NotificationsDispatchedTotal.WithLabelValues(models.RecipientSupplier).Inc()

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed",
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}

	w.logger.Info("Supplier notified of validated order",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("supplier_id", event.SupplierID))
	return nil
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":   event.OrderID,
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
		"message":    "Your order status has been updated.",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	notification := &models.Notification{
		RecipientKind: models.RecipientCustomer,
		RecipientID:   event.UserID,
		EventType:     event.EventType,
		Payload:       payload,
	}
	if err := w.store.CreateNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to create customer notification: %w", err)
	}

	util.NotificationsDispatchedTotal.WithLabelValues(models.RecipientCustomer).Inc()

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed",
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}

	w.logger.Info("Customer notified of status change",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.String("new_status", event.NewStatus))
	return nil
}
