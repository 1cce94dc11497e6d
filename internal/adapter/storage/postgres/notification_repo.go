package postgres

import (
	"context"
	"fmt"

	"savings-ledger/internal/core/domain"
)

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct {
	pool Pool
}

// NewNotificationRepo creates a PostgreSQL-backed NotificationRepository.
func NewNotificationRepo(pool Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_delivery_logs
		(id, settlement_id, user_id, url, payload, http_status, attempt, status, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		log.ID, log.SettlementID, log.UserID, log.URL,
		log.Payload, log.HTTPStatus, log.Attempt, log.Status,
		log.NextRetryAt, log.LastError, log.CreatedAt, log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

func (r *NotificationRepo) Update(ctx context.Context, log *domain.NotificationDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_delivery_logs
		SET http_status = $1, attempt = $2, status = $3, next_retry_at = $4, last_error = $5, updated_at = $6
		WHERE id = $7`,
		log.HTTPStatus, log.Attempt, log.Status,
		log.NextRetryAt, log.LastError, log.UpdatedAt, log.ID,
	)
	if err != nil {
		return fmt.Errorf("update notification log: %w", err)
	}
	return nil
}
