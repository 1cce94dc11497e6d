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

func strPtr(s string) *string { return &s }

func newTestTxn(userID string, amount int64) *domain.VirtualTransaction {
	return &domain.VirtualTransaction{
		ID:           uuid.New(),
		WalletID:     uuid.New(),
		UserID:       userID,
		Amount:       amount,
		TriggerRef:   strPtr("purchase-42"),
		TriggerLabel: strPtr("round-up"),
		Status:       domain.TransactionStatusPending,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func txnColumnNames() []string {
	return []string{"id", "wallet_id", "user_id", "amount", "trigger_ref", "trigger_label",
		"status", "batch_id", "created_at", "settled_at"}
}

func txnRows(txns ...*domain.VirtualTransaction) *pgxmock.Rows {
	rows := pgxmock.NewRows(txnColumnNames())
	for _, t := range txns {
		rows.AddRow(t.ID, t.WalletID, t.UserID, t.Amount, t.TriggerRef, t.TriggerLabel,
			t.Status, t.BatchID, t.CreatedAt, t.SettledAt)
	}
	return rows
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTxn("user-1", 2500)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO virtual_transactions").
		WithArgs(txn.ID, txn.WalletID, txn.UserID, txn.Amount, txn.TriggerRef, txn.TriggerLabel,
			txn.Status, txn.BatchID, txn.CreatedAt, txn.SettledAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM virtual_transactions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(txnColumnNames()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestTransactionRepo_ListByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	t1 := newTestTxn("user-1", 1000)
	t2 := newTestTxn("user-1", 1500)

	mock.ExpectQuery("SELECT .+ FROM virtual_transactions WHERE user_id = \\$1 ORDER BY created_at DESC, seq DESC LIMIT").
		WithArgs("user-1", 50, 0).
		WillReturnRows(txnRows(t2, t1))

	result, err := repo.ListByUser(context.Background(), "user-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, t2.ID, result[0].ID)
	assert.Equal(t, "round-up", *result[1].TriggerLabel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_PendingTotals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT user_id, .+ FROM virtual_transactions WHERE status = 'PENDING' GROUP BY user_id").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "sum", "count"}).
			AddRow("user-1", int64(5000), 2).
			AddRow("user-2", int64(300), 1))

	totals, err := repo.PendingTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "user-1", totals[0].UserID)
	assert.Equal(t, int64(5000), totals[0].Amount)
	assert.Equal(t, 2, totals[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_CountInFlight(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM virtual_transactions WHERE user_id = \\$1 AND status = 'BATCHED'").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	n, err := repo.CountInFlight(context.Background(), dbTx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ClaimPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	batchID := uuid.New()
	t1 := newTestTxn("user-1", 2500)
	t2 := newTestTxn("user-1", 2500)
	for _, txn := range []*domain.VirtualTransaction{t1, t2} {
		txn.Status = domain.TransactionStatusBatched
		txn.BatchID = &batchID
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE virtual_transactions SET status = 'BATCHED', batch_id = \\$1 WHERE user_id = \\$2 AND status = 'PENDING' RETURNING").
		WithArgs(batchID, "user-1").
		WillReturnRows(txnRows(t1, t2))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	claimed, err := repo.ClaimPending(context.Background(), dbTx, "user-1", batchID)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, domain.TransactionStatusBatched, claimed[0].Status)
	assert.Equal(t, batchID, *claimed[1].BatchID)
	assert.Equal(t, int64(5000), domain.SumAmounts(claimed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_MarkSettledAndRelease(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	batchID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE virtual_transactions SET status = 'SETTLED'").
		WithArgs(at, batchID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("UPDATE virtual_transactions SET status = 'PENDING', batch_id = NULL").
		WithArgs(batchID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	n, err := repo.MarkSettled(context.Background(), dbTx, batchID, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.Release(context.Background(), dbTx, batchID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
