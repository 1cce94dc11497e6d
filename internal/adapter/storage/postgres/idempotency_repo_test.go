package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savings-ledger/internal/core/domain"
)

var idempotencyColumns = []string{"key", "transaction_id", "response_json", "created_at"}

func TestIdempotencyRepo_Create(t *testing.T) {
	entry := &domain.IdempotencyLog{
		Key:           "user-1:credit:round-up-881",
		TransactionID: uuid.New(),
		ResponseJSON:  []byte(`{"amount":2500,"status":"PENDING"}`),
		CreatedAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name    string
		result  pgconn.CommandTag
		execErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:   "recorded",
			result: pgxmock.NewResult("INSERT", 1),
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "key already committed by another request",
			result: pgxmock.NewResult("INSERT", 0),
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrIdempotencyKeyTaken) },
		},
		{
			name:    "statement fails",
			execErr: errors.New("connection reset"),
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrIdempotencyKeyTaken)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectBegin()
			exp := mock.ExpectExec("INSERT INTO idempotency_logs .+ ON CONFLICT \\(key\\) DO NOTHING").
				WithArgs(entry.Key, entry.TransactionID, entry.ResponseJSON, entry.CreatedAt)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			tx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			tt.check(t, NewIdempotencyRepo(mock).Create(context.Background(), tx, entry))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdempotencyRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewIdempotencyRepo(mock)
	txID := uuid.New()
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM idempotency_logs WHERE key").
		WithArgs("user-1:credit:round-up-881").
		WillReturnRows(pgxmock.NewRows(idempotencyColumns).
			AddRow("user-1:credit:round-up-881", txID, []byte(`{"status":"PENDING"}`), created))
	mock.ExpectQuery("SELECT .+ FROM idempotency_logs WHERE key").
		WithArgs("user-1:credit:unused").
		WillReturnRows(pgxmock.NewRows(idempotencyColumns))

	found, err := repo.Get(context.Background(), "user-1:credit:round-up-881")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, txID, found.TransactionID)
	assert.Equal(t, created, found.CreatedAt)

	missing, err := repo.Get(context.Background(), "user-1:credit:unused")
	assert.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}
