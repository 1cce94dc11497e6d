package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCredit      AuditAction = "CREDIT"
	AuditActionSettleForce AuditAction = "SETTLE_FORCE"
	AuditActionSettleScan  AuditAction = "SETTLE_SCAN"
	AuditActionSettleSweep AuditAction = "SETTLE_SWEEP"
	AuditActionRecover     AuditAction = "SETTLE_RECOVER"
	AuditActionDebit       AuditAction = "GATEWAY_DEBIT"
	AuditActionDisburse    AuditAction = "DISBURSE"
	AuditActionCallback    AuditAction = "CALLBACK"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *string     `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
