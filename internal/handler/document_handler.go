package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
	"github.com/noah-isme/sma-gatepass-api/pkg/response"
	"github.com/noah-isme/sma-gatepass-api/pkg/storage"
)

type documentOpener interface {
	OpenToken(token string) (io.ReadCloser, string, error)
}

// DocumentHandler serves documents kept in the local store through signed links.
type DocumentHandler struct {
	store  documentOpener
	logger *zap.Logger
}

// NewDocumentHandler builds a new handler.
func NewDocumentHandler(store documentOpener, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{store: store, logger: logger}
}

// Download godoc
// @Summary Download a gate pass document
// @Tags Documents
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	rc, name, err := h.store.OpenToken(c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download link expired"))
		case errors.Is(err, storage.ErrInvalidToken):
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid download link"))
		case errors.Is(err, storage.ErrObjectNotFound):
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "document not found"))
		default:
			h.logger.Sugar().Errorw("open document failed", "error", err)
			response.Error(c, err)
		}
		return
	}
	defer rc.Close() //nolint:errcheck

	c.Header("Cache-Control", "private, no-store")
	c.Header("Content-Disposition", "inline; filename=\""+name+"\"")
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Sugar().Warnw("document stream interrupted", "file", name, "error", err)
	}
}
