package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duetapp/duet-api/internal/dto"
	"github.com/duetapp/duet-api/internal/models"
	"github.com/duetapp/duet-api/internal/service"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
	"github.com/duetapp/duet-api/pkg/response"
)

type schedulingOrchestrator interface {
	BulkCreate(ctx context.Context, ownerID string, req dto.BulkCreateRequest) (*dto.BulkCreateResult, error)
	CheckConflicts(ctx context.Context, ownerID string, req dto.ConflictCheckRequest) (*dto.ConflictCheckResult, error)
	SearchAvailableUsers(ctx context.Context, viewerID string, req dto.SearchAvailableRequest) ([]dto.AvailableUser, int, error)
}

// SchedulingHandler exposes bulk creation, conflict probes and partner search.
type SchedulingHandler struct {
	service schedulingOrchestrator
}

// NewSchedulingHandler constructs the handler.
func NewSchedulingHandler(svc *service.SchedulingService) *SchedulingHandler {
	return &SchedulingHandler{service: svc}
}

// BulkCreate godoc
// @Summary Create several slots in one call
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.BulkCreateRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /slots/bulk [post]
func (h *SchedulingHandler) BulkCreate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	for i := range req.Slots {
		req.Slots[i].ParentSlotID = nil
	}

	result, err := h.service.BulkCreate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CheckConflicts godoc
// @Summary Probe a time range for conflicts without creating a slot
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.ConflictCheckRequest true "Conflict probe"
// @Success 200 {object} response.Envelope
// @Router /slots/check-conflicts [post]
func (h *SchedulingHandler) CheckConflicts(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ConflictCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict check payload"))
		return
	}

	result, err := h.service.CheckConflicts(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Search godoc
// @Summary Search users with open availability
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body dto.SearchAvailableRequest true "Search filter"
// @Success 200 {object} response.Envelope
// @Router /search/available [post]
func (h *SchedulingHandler) Search(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SearchAvailableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid search payload"))
		return
	}

	users, total, err := h.service.SearchAvailableUsers(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	response.JSON(c, http.StatusOK, users, &models.Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
	})
}
