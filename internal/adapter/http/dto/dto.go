package dto

import (
	"savings-ledger/internal/core/domain"
)

// CreditRequest is the request body for a wallet credit.
type CreditRequest struct {
	Amount       int64   `json:"amount"` // range checked by the ledger
	TriggerRef   *string `json:"trigger_ref,omitempty" binding:"omitempty,max=100,safe_id"`
	TriggerLabel *string `json:"trigger_label,omitempty" binding:"omitempty,max=200"`
}

// HistoryQuery holds the paging parameters of the history endpoint.
type HistoryQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// SettlementsQuery limits the per-user batch history.
type SettlementsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// DisbursementRequest is the request body for a push payment to a user.
type DisbursementRequest struct {
	UserID      string `json:"user_id" binding:"required,max=64,safe_id"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Provider    string `json:"provider" binding:"required,oneof=MTN ORANGE"`
	Reference   string `json:"reference" binding:"required,max=100,safe_id"`
	PhoneNumber string `json:"phone_number,omitempty" binding:"omitempty,max=20,numeric"`
}

// HistoryResponse wraps a page of virtual transactions.
type HistoryResponse struct {
	Items  []domain.VirtualTransaction `json:"items"`
	Limit  int                         `json:"limit"`
	Offset int                         `json:"offset"`
}

// SettlementListResponse wraps a user's batch history.
type SettlementListResponse struct {
	Items []domain.BatchSettlement `json:"items"`
}

// SettlementRunResponse reports the outcomes of a scan, sweep or recovery.
type SettlementRunResponse struct {
	Processed int                        `json:"processed"`
	Settled   int                        `json:"settled"`
	Failed    int                        `json:"failed"`
	Outcomes  []domain.SettlementOutcome `json:"outcomes"`
}

// NewSettlementRunResponse counts outcomes by status.
func NewSettlementRunResponse(outcomes []domain.SettlementOutcome) SettlementRunResponse {
	resp := SettlementRunResponse{Processed: len(outcomes), Outcomes: outcomes}
	if resp.Outcomes == nil {
		resp.Outcomes = []domain.SettlementOutcome{}
	}
	for i := range outcomes {
		switch outcomes[i].Status {
		case domain.SettlementStatusSettled:
			resp.Settled++
		case domain.SettlementStatusFailed:
			resp.Failed++
		}
	}
	return resp
}
