package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
	param        string // route parameter used as resource id
}

// auditRoutes maps "METHOD route-pattern" to the recorded action. Gateway
// calls and per-settlement outcomes are audited by the services themselves.
var auditRoutes = map[string]auditRoute{
	"POST /api/v1/wallets/:user_id/credits":   {domain.AuditActionCredit, "wallet", "user_id"},
	"POST /api/v1/settlements/users/:user_id": {domain.AuditActionSettleForce, "settlement_run", "user_id"},
	"POST /api/v1/settlements/run":            {domain.AuditActionSettleScan, "settlement_run", ""},
	"POST /api/v1/settlements/sweep":          {domain.AuditActionSettleSweep, "settlement_run", ""},
	"POST /api/v1/settlements/recover":        {domain.AuditActionRecover, "settlement_run", ""},
}

// AuditLog records successful write requests after the handler ran.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		route, ok := auditRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		var userID *string
		if route.param == "user_id" {
			id := c.Param("user_id")
			userID = &id
		}
		var resourceID string
		if route.param != "" {
			resourceID = c.Param(route.param)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"operator": c.GetString(CtxSubject),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			UserID:       userID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}
