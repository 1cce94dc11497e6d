package handler

import (
	"context"

	"savings-ledger/internal/adapter/http/dto"
	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/pkg/apperror"
	"savings-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// SettlementHandler exposes operator-triggered settlement runs.
type SettlementHandler struct {
	engine ports.SettlementEngine
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(engine ports.SettlementEngine) *SettlementHandler {
	return &SettlementHandler{engine: engine}
}

// Run handles POST /api/v1/settlements/run.
func (h *SettlementHandler) Run(c *gin.Context) {
	h.batch(c, h.engine.ScanAndSettle)
}

// Sweep handles POST /api/v1/settlements/sweep.
func (h *SettlementHandler) Sweep(c *gin.Context) {
	h.batch(c, h.engine.SweepAll)
}

// Recover handles POST /api/v1/settlements/recover.
func (h *SettlementHandler) Recover(c *gin.Context) {
	h.batch(c, h.engine.RecoverStale)
}

func (h *SettlementHandler) batch(c *gin.Context, run func(context.Context) ([]domain.SettlementOutcome, error)) {
	outcomes, err := run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSettlementRunResponse(outcomes))
}

// ForceUser handles POST /api/v1/settlements/users/:user_id.
func (h *SettlementHandler) ForceUser(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	outcome, err := h.engine.ForceSettle(c.Request.Context(), uid)
	if err != nil {
		response.Error(c, err)
		return
	}
	if outcome == nil {
		response.Error(c, apperror.ErrNoPendingTransactions())
		return
	}
	response.OK(c, outcome)
}

// Stats handles GET /api/v1/settlements/stats.
func (h *SettlementHandler) Stats(c *gin.Context) {
	stats, err := h.engine.BatchStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
