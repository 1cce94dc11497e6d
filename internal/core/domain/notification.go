package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationStatus represents the delivery state of an outcome notification.
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "PENDING"
	NotificationStatusDelivered NotificationStatus = "DELIVERED"
	NotificationStatusFailed    NotificationStatus = "FAILED"
)

// NotificationDeliveryLog records each attempt to push a settlement outcome
// to the downstream consumer.
type NotificationDeliveryLog struct {
	ID           uuid.UUID          `json:"id"`
	SettlementID uuid.UUID          `json:"settlement_id"`
	UserID       string             `json:"user_id"`
	URL          string             `json:"url"`
	Payload      string             `json:"payload"`
	HTTPStatus   *int               `json:"http_status"`
	Attempt      int                `json:"attempt"`
	Status       NotificationStatus `json:"status"`
	NextRetryAt  *time.Time         `json:"next_retry_at"`
	LastError    *string            `json:"last_error"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
