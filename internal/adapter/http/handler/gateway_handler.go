package handler

import (
	"strings"

	"savings-ledger/internal/adapter/http/dto"
	"savings-ledger/internal/adapter/http/middleware"
	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
	"savings-ledger/pkg/apperror"
	"savings-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// GatewayHandler serves collector balance, disbursements and provider callbacks.
type GatewayHandler struct {
	gateway ports.GatewayClient
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(gateway ports.GatewayClient) *GatewayHandler {
	return &GatewayHandler{gateway: gateway}
}

func providerParam(c *gin.Context) (domain.Provider, bool) {
	raw := strings.ToUpper(c.Param("provider"))
	p, ok := domain.ParseProvider(raw)
	if !ok {
		response.Error(c, apperror.ErrUnknownProvider(raw))
		return "", false
	}
	return p, true
}

// CollectorBalance handles GET /api/v1/gateway/:provider/balance.
func (h *GatewayHandler) CollectorBalance(c *gin.Context) {
	provider, ok := providerParam(c)
	if !ok {
		return
	}

	balance, err := h.gateway.CollectorBalance(c.Request.Context(), provider)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, balance)
}

// Disburse handles POST /api/v1/gateway/disbursements.
func (h *GatewayHandler) Disburse(c *gin.Context) {
	var req dto.DisbursementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.gateway.Disburse(c.Request.Context(), domain.TransferRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Reference:   req.Reference,
		Provider:    domain.Provider(req.Provider),
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.Success {
		response.Error(c, apperror.ErrGatewayRejected(result.Error))
		return
	}
	response.Created(c, result)
}

// Callback handles POST /api/v1/gateway/callbacks/:provider. The request has
// already passed CallbackAuth.
func (h *GatewayHandler) Callback(c *gin.Context) {
	provider, ok := domain.ParseProvider(c.GetString(middleware.CtxProvider))
	if !ok {
		response.Error(c, apperror.ErrUnknownProvider(c.Param("provider")))
		return
	}

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperror.Validation("callback body must be a JSON object"))
		return
	}

	ack, err := h.gateway.HandleCallback(c.Request.Context(), provider, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, ack)
}
