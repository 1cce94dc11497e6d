package handler

import (
	"savings-ledger/internal/adapter/http/dto"
	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/pkg/apperror"
	"savings-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets clients retry a credit safely.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	maxIdempotencyKeyLength = 128
	defaultSettlementLimit  = 20
)

// WalletHandler serves the per-user ledger endpoints.
type WalletHandler struct {
	ledger ports.LedgerService
	engine ports.SettlementEngine
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.LedgerService, engine ports.SettlementEngine) *WalletHandler {
	return &WalletHandler{ledger: ledger, engine: engine}
}

// userID reads and validates the :user_id path parameter.
func userID(c *gin.Context) (string, bool) {
	id := c.Param("user_id")
	if !dto.ValidUserID(id) {
		response.Error(c, apperror.Validation("invalid user_id"))
		return "", false
	}
	return id, true
}

// Credit handles POST /api/v1/wallets/:user_id/credits.
func (h *WalletHandler) Credit(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req dto.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	key := c.GetHeader(HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		response.Error(c, apperror.Validation("Idempotency-Key too long"))
		return
	}

	result, err := h.ledger.Credit(c.Request.Context(), ports.CreditRequest{
		UserID:         uid,
		Amount:         req.Amount,
		TriggerRef:     req.TriggerRef,
		TriggerLabel:   req.TriggerLabel,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// Balance handles GET /api/v1/wallets/:user_id/balance.
func (h *WalletHandler) Balance(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, balance)
}

// History handles GET /api/v1/wallets/:user_id/history.
func (h *WalletHandler) History(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txns, err := h.ledger.History(c.Request.Context(), uid, q.Limit, q.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	if txns == nil {
		txns = []domain.VirtualTransaction{}
	}

	response.OK(c, dto.HistoryResponse{Items: txns, Limit: q.Limit, Offset: q.Offset})
}

// BatchStatus handles GET /api/v1/wallets/:user_id/batch-status.
func (h *WalletHandler) BatchStatus(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	status, err := h.ledger.PendingBatchStatus(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}

// Settlements handles GET /api/v1/wallets/:user_id/settlements.
func (h *WalletHandler) Settlements(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var q dto.SettlementsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultSettlementLimit
	}

	batches, err := h.engine.BatchHistory(c.Request.Context(), uid, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if batches == nil {
		batches = []domain.BatchSettlement{}
	}
	response.OK(c, dto.SettlementListResponse{Items: batches})
}
