package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gatepass-api/internal/middleware"
	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

// Routes groups the handlers mounted by RegisterRoutes. Documents may be nil
// when documents are served by the object store directly.
type Routes struct {
	APIPrefix    string
	GatePasses   *GatePassHandler
	Verification *VerificationHandler
	Documents    *DocumentHandler
	Auth         *AuthHandler
	Sync         *SyncHandler
	Metrics      *MetricsHandler
	Tokens       middleware.TokenValidator
}

// RegisterRoutes mounts the public, scanner and admin endpoints on r.
func RegisterRoutes(r *gin.Engine, routes Routes) {
	r.GET("/health", routes.Metrics.Health)
	r.GET("/ready", routes.Metrics.Ready)
	r.GET("/metrics", routes.Metrics.Prometheus)

	r.GET("/verify-pass", routes.Verification.Verify)
	if routes.Documents != nil {
		r.GET("/documents/:token", routes.Documents.Download)
	}

	api := r.Group(routes.APIPrefix)
	api.POST("/gatepasses", routes.GatePasses.Issue)
	api.POST("/admin/token", routes.Auth.Token)

	admin := api.Group("/admin", middleware.JWT(routes.Tokens))
	readers := middleware.RequireRoles(models.RoleAdmin, models.RoleAuditor)
	admins := middleware.RequireRoles(models.RoleAdmin)

	admin.GET("/gatepasses/:passId/scans", readers, routes.Verification.Scans)
	admin.GET("/students/:studentId/gatepasses", readers, routes.GatePasses.History)
	admin.GET("/metrics", readers, routes.Metrics.Snapshot)

	admin.POST("/sync", admins, routes.Sync.Start)
	admin.GET("/sync", admins, routes.Sync.List)
	admin.GET("/sync/:runId", admins, routes.Sync.Status)
	admin.POST("/sync/:runId/cancel", admins, routes.Sync.Cancel)
}
