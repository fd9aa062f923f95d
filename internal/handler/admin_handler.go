package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
	"github.com/noah-isme/sma-gatepass-api/pkg/response"
)

type adminTokenIssuer interface {
	IssueToken(ctx context.Context, req models.AdminTokenRequest) (*models.AdminTokenResponse, error)
}

type syncController interface {
	Start(ctx context.Context) (*models.SyncCheckpoint, error)
	Status(ctx context.Context, runID string) (*models.SyncRunStatus, error)
	Cancel(ctx context.Context, runID string) (*models.SyncCheckpoint, error)
	Runs(ctx context.Context, limit int) ([]models.SyncCheckpoint, error)
}

// AuthHandler exchanges operator keys for admin tokens.
type AuthHandler struct {
	auth adminTokenIssuer
}

// NewAuthHandler builds a new handler.
func NewAuthHandler(auth adminTokenIssuer) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Token godoc
// @Summary Exchange an admin key for an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.AdminTokenRequest true "Admin key"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /admin/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.AdminTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	token, err := h.auth.IssueToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, token)
}

// SyncHandler lets operators drive the profile sync.
type SyncHandler struct {
	sync syncController
}

// NewSyncHandler builds a new handler.
func NewSyncHandler(sync syncController) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Start godoc
// @Summary Start a profile sync run
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/sync [post]
func (h *SyncHandler) Start(c *gin.Context) {
	cp, err := h.sync.Start(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, cp)
}

// List godoc
// @Summary List recent profile sync runs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows (default 10)"
// @Success 200 {object} response.Envelope
// @Router /admin/sync [get]
func (h *SyncHandler) List(c *gin.Context) {
	runs, err := h.sync.Runs(c.Request.Context(), queryLimit(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, map[string]interface{}{"count": len(runs)})
}

// Status godoc
// @Summary Get a profile sync run
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/sync/{runId} [get]
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.sync.Status(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}

// Cancel godoc
// @Summary Cancel a running profile sync
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/sync/{runId}/cancel [post]
func (h *SyncHandler) Cancel(c *gin.Context) {
	cp, err := h.sync.Cancel(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cp)
}
