package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's notional and confirmed savings. Amounts are in the
// smallest currency unit (FCFA).
type Wallet struct {
	ID                uuid.UUID  `json:"id"`
	UserID            string     `json:"user_id"`
	VirtualBalance    int64      `json:"virtual_balance"`
	ConfirmedBalance  int64      `json:"confirmed_balance"`
	TotalSaved        int64      `json:"total_saved"`
	CurrentStreakDays int        `json:"current_streak_days"`
	LongestStreakDays int        `json:"longest_streak_days"`
	LastCreditAt      *time.Time `json:"last_credit_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID string, now time.Time) *Wallet {
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyCredit performs the in-memory form of a credit: notional totals and
// the activity streak move together.
func (w *Wallet) ApplyCredit(amount int64, at time.Time) {
	w.VirtualBalance += amount
	w.TotalSaved += amount
	w.CurrentStreakDays++
	if w.CurrentStreakDays > w.LongestStreakDays {
		w.LongestStreakDays = w.CurrentStreakDays
	}
	w.LastCreditAt = &at
	w.UpdatedAt = at
}

// Balance is the read model returned to collaborators.
type Balance struct {
	UserID            string `json:"user_id"`
	VirtualBalance    int64  `json:"virtual_balance"`
	ConfirmedBalance  int64  `json:"confirmed_balance"`
	PendingSettlement int64  `json:"pending_settlement"`
	TotalSaved        int64  `json:"total_saved"`
	CurrentStreakDays int    `json:"current_streak_days"`
	LongestStreakDays int    `json:"longest_streak_days"`
}

// PendingBatchStatus previews whether a forced or scheduled batch would act.
type PendingBatchStatus struct {
	UserID        string `json:"user_id"`
	PendingAmount int64  `json:"pending_amount"`
	Threshold     int64  `json:"threshold"`
	Ready         bool   `json:"ready"`
	Count         int    `json:"count"`
}
