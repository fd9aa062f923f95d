package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/internal/service"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
	"github.com/noah-isme/sma-gatepass-api/pkg/response"
)

type gatePassIssuer interface {
	Issue(ctx context.Context, req models.IssueGatePassRequest) (*models.IssueGatePassResult, error)
	History(ctx context.Context, studentID string, limit int) ([]models.GatePass, error)
}

// GatePassHandler exposes gate pass issuance endpoints.
type GatePassHandler struct {
	issuer gatePassIssuer
}

// NewGatePassHandler builds a new handler.
func NewGatePassHandler(issuer gatePassIssuer) *GatePassHandler {
	return &GatePassHandler{issuer: issuer}
}

// Issue godoc
// @Summary Request a gate pass
// @Description Checks term dates, fee payments and the weekly request count, then issues and delivers a pass.
// @Tags GatePasses
// @Accept json
// @Produce json
// @Param payload body models.IssueGatePassRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /gatepasses [post]
func (h *GatePassHandler) Issue(c *gin.Context) {
	var req models.IssueGatePassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.issuer.Issue(c.Request.Context(), req)
	if err != nil {
		var denial *service.Denial
		if errors.As(err, &denial) {
			response.Error(c, denial.AppError())
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// History godoc
// @Summary List a student's gate passes
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param limit query int false "Maximum rows (default 20)"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{studentId}/gatepasses [get]
func (h *GatePassHandler) History(c *gin.Context) {
	passes, err := h.issuer.History(c.Request.Context(), c.Param("studentId"), queryLimit(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, passes, map[string]interface{}{"count": len(passes)})
}
