package postgres

import (
	"context"
	"testing"
	"time"

	"savings-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_CreateAndList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       strPtr("user-1"),
		Action:       domain.AuditActionCredit,
		ResourceType: "wallet",
		ResourceID:   "user-1",
		Details:      `{"amount":2500}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.UserID, entry.Action, entry.ResourceType,
			entry.ResourceID, entry.Details, entry.IPAddress, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM audit_logs WHERE resource_type = \\$1 AND resource_id = \\$2").
		WithArgs("wallet", "user-1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "action", "resource_type",
			"resource_id", "details", "ip_address", "created_at"}).
			AddRow(entry.ID, entry.UserID, entry.Action, entry.ResourceType,
				entry.ResourceID, entry.Details, entry.IPAddress, entry.CreatedAt))

	require.NoError(t, repo.Create(context.Background(), entry))

	logs, err := repo.ListByResource(context.Background(), "wallet", "user-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditActionCredit, logs[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_CreateAndUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewNotificationRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &domain.NotificationDeliveryLog{
		ID:           uuid.New(),
		SettlementID: uuid.New(),
		UserID:       "user-1",
		URL:          "https://hooks.example.com/settlements",
		Payload:      `{"status":"SETTLED"}`,
		Attempt:      1,
		Status:       domain.NotificationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec("INSERT INTO notification_delivery_logs").
		WithArgs(entry.ID, entry.SettlementID, entry.UserID, entry.URL,
			entry.Payload, entry.HTTPStatus, entry.Attempt, entry.Status,
			entry.NextRetryAt, entry.LastError, entry.CreatedAt, entry.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), entry))

	code := 200
	entry.HTTPStatus = &code
	entry.Status = domain.NotificationStatusDelivered
	mock.ExpectExec("UPDATE notification_delivery_logs").
		WithArgs(entry.HTTPStatus, entry.Attempt, entry.Status,
			entry.NextRetryAt, entry.LastError, entry.UpdatedAt, entry.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}
