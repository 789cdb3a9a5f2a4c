package service

import (
	"time"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
)

// cacheOpTimeout bounds compensation calls made outside the request
// context.
const cacheOpTimeout = 5 * time.Second

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
