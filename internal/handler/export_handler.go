package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/duetapp/duet-api/internal/service"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
	"github.com/duetapp/duet-api/pkg/response"
)

type scheduleExporter interface {
	ScheduleCSV(ctx context.Context, ownerID string, from time.Time) ([]byte, error)
	SchedulePDF(ctx context.Context, ownerID string, from time.Time) ([]byte, error)
}

// ExportHandler streams the caller's schedule as a downloadable file.
type ExportHandler struct {
	service scheduleExporter
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Schedule godoc
// @Summary Export the caller's schedule
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf, defaults to csv"
// @Param from query string false "Start date (YYYY-MM-DD), defaults to today"
// @Success 200 {file} binary
// @Router /exports/schedule [get]
func (h *ExportHandler) Schedule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	from := time.Now().UTC()
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD"))
			return
		}
		from = parsed
	}

	format := c.DefaultQuery("format", "csv")
	filename := fmt.Sprintf("schedule-%s", from.Format("2006-01-02"))

	switch format {
	case "csv":
		payload, err := h.service.ScheduleCSV(c.Request.Context(), claims.UserID, from)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, filename))
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.service.SchedulePDF(c.Request.Context(), claims.UserID, from)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, filename))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}
