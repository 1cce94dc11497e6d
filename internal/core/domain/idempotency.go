package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog remembers the result of a keyed credit so a replay returns
// the first transaction instead of crediting twice.
type IdempotencyLog struct {
	Key           string    `json:"key"` // Format: "user_id:credit:client_key"
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// ErrIdempotencyKeyTaken is returned when another credit already recorded
// the same key.
var ErrIdempotencyKeyTaken = errors.New("idempotency key already recorded")

// BuildCreditIdempotencyKey constructs the key for a keyed credit.
func BuildCreditIdempotencyKey(userID, clientKey string) string {
	return userID + ":credit:" + clientKey
}

// BuildGatewayCacheKey namespaces a successful gateway result by operation
// and caller reference.
func BuildGatewayCacheKey(op TransferOperation, reference string) string {
	return "gateway:" + string(op) + ":" + reference
}
