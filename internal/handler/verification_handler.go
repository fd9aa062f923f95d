package handler

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/pkg/export"
	"github.com/noah-isme/sma-gatepass-api/pkg/response"
)

//go:embed templates/verify.html
var templateFS embed.FS

var verifyPage = template.Must(template.ParseFS(templateFS, "templates/verify.html"))

type passVerifier interface {
	Verify(ctx context.Context, passID, contact string) (*models.VerificationResult, error)
	AlertOwner(ctx context.Context, result *models.VerificationResult) error
	ListScans(ctx context.Context, passID string) ([]models.ScanRecord, error)
}

// VerificationHandler serves the scan endpoint and the scan audit.
type VerificationHandler struct {
	verifier passVerifier
	logger   *zap.Logger
	location *time.Location
	exporter *export.CSVExporter
	dispatch func(func())
}

// NewVerificationHandler builds a new handler. Times on the HTML page are shown in loc.
func NewVerificationHandler(verifier passVerifier, loc *time.Location, logger *zap.Logger) *VerificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &VerificationHandler{
		verifier: verifier,
		logger:   logger,
		location: loc,
		exporter: export.NewCSVExporter(),
		dispatch: func(f func()) { go f() },
	}
}

type verifyView struct {
	Status      models.VerificationStatus
	Heading     string
	Warning     bool
	Found       bool
	PassID      string
	StudentID   string
	StudentName string
	ExpiresAt   string
	ScannedAt   string
}

var verifyHeadings = map[models.VerificationStatus]string{
	models.VerificationValid:            "Valid Gate Pass",
	models.VerificationExpired:          "Gate Pass Expired",
	models.VerificationUnauthorizedScan: "Unauthorized Scan",
	models.VerificationNotFound:         "Gate Pass Not Found",
}

// Verify godoc
// @Summary Verify a scanned gate pass
// @Description Renders an HTML result page, or JSON when the client accepts application/json.
// @Tags Verification
// @Produce html
// @Produce json
// @Param pass_id query string true "Pass ID"
// @Param contact query string true "Scanning contact"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /verify-pass [get]
func (h *VerificationHandler) Verify(c *gin.Context) {
	result, err := h.verifier.Verify(c.Request.Context(), c.Query("pass_id"), c.Query("contact"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Warning {
		alert := *result
		// gin recycles c once the handler returns.
		ctx := context.WithoutCancel(c.Request.Context())
		h.dispatch(func() {
			if err := h.verifier.AlertOwner(ctx, &alert); err != nil {
				h.logger.Sugar().Warnw("owner alert not delivered", "pass_id", alert.PassID, "error", err)
			}
		})
	}

	status := http.StatusOK
	if result.Status == models.VerificationNotFound {
		status = http.StatusNotFound
	}
	if wantsJSON(c) {
		response.JSON(c, status, result)
		return
	}
	h.renderPage(c, status, result)
}

func (h *VerificationHandler) renderPage(c *gin.Context, status int, result *models.VerificationResult) {
	view := verifyView{
		Status:      result.Status,
		Heading:     verifyHeadings[result.Status],
		Warning:     result.Warning,
		Found:       result.Status != models.VerificationNotFound,
		PassID:      result.PassID,
		StudentID:   result.StudentID,
		StudentName: result.StudentName,
		ScannedAt:   result.ScannedAt.In(h.location).Format("2006-01-02 15:04"),
	}
	if result.ExpiresAt != nil {
		view.ExpiresAt = result.ExpiresAt.In(h.location).Format("2006-01-02 15:04")
	}

	var buf bytes.Buffer
	if err := verifyPage.Execute(&buf, view); err != nil {
		h.logger.Sugar().Errorw("render verify page", "error", err)
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

var scanCSVHeaders = []string{"id", "pass_id", "scanned_at", "scanned_by_contact", "matched_authorized_contact", "result"}

// Scans godoc
// @Summary List scans of a gate pass
// @Tags Admin
// @Produce json
// @Produce text/csv
// @Security BearerAuth
// @Param passId path string true "Pass ID"
// @Param format query string false "csv for a file download"
// @Success 200 {object} response.Envelope
// @Router /admin/gatepasses/{passId}/scans [get]
func (h *VerificationHandler) Scans(c *gin.Context) {
	passID := c.Param("passId")
	scans, err := h.verifier.ListScans(c.Request.Context(), passID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if c.Query("format") != "csv" {
		response.JSON(c, http.StatusOK, scans, map[string]interface{}{"count": len(scans)})
		return
	}

	dataset := export.Dataset{Headers: scanCSVHeaders}
	for _, s := range scans {
		matched := "false"
		if s.MatchedAuthorizedContact {
			matched = "true"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":                         s.ID,
			"pass_id":                    s.PassID,
			"scanned_at":                 s.ScannedAt.UTC().Format(time.RFC3339),
			"scanned_by_contact":         s.ScannedByContact,
			"matched_authorized_contact": matched,
			"result":                     string(s.Result),
		})
	}
	data, err := h.exporter.Render(dataset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, passID+"-scans.csv", "text/csv", data)
}
