package postgres

import (
	"context"
	"errors"
	"fmt"
)

// ledgerTables must all exist before the service can take credits.
var ledgerTables = []string{
	"wallets",
	"virtual_transactions",
	"batch_settlements",
	"idempotency_logs",
}

var errSchemaMissing = errors.New("ledger schema not migrated")

// SchemaCheck reports PostgreSQL as healthy only when it answers and the
// ledger tables are in place.
type SchemaCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *SchemaCheck {
	return &SchemaCheck{pool: pool}
}

func (h *SchemaCheck) Ping(ctx context.Context) error {
	var found int
	err := h.pool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ANY($1)`,
		ledgerTables,
	).Scan(&found)
	if err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	if found != len(ledgerTables) {
		return fmt.Errorf("%w: %d of %d tables", errSchemaMissing, found, len(ledgerTables))
	}
	return nil
}

func (h *SchemaCheck) Name() string { return "postgresql" }
