package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/duetapp/duet-api/internal/dto"
	"github.com/duetapp/duet-api/internal/models"
	"github.com/duetapp/duet-api/internal/service"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
	"github.com/duetapp/duet-api/pkg/response"
)

type slotManager interface {
	Create(ctx context.Context, ownerID string, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error)
	Update(ctx context.Context, slotID, ownerID string, req dto.UpdateSlotRequest) (*models.AvailabilitySlot, error)
	Cancel(ctx context.Context, slotID, ownerID string, reason *string) (*models.AvailabilitySlot, error)
	SoftDelete(ctx context.Context, slotID, ownerID string, reason *string) error
	Get(ctx context.Context, slotID, ownerID string) (*models.AvailabilitySlot, error)
	ListMine(ctx context.Context, ownerID string, from time.Time) ([]models.AvailabilitySlot, error)
}

type recurringManager interface {
	Generate(ctx context.Context, ownerID string, req dto.GenerateRecurringRequest) (*dto.RecurringGenerationResult, error)
	CancelGroup(ctx context.Context, ownerID, parentID string, reason *string) (int, error)
}

// SlotHandler exposes availability slot endpoints.
type SlotHandler struct {
	slots     slotManager
	recurring recurringManager
	metrics   *service.MetricsService
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(slots *service.SlotService, recurring *service.RecurringService, metrics *service.MetricsService) *SlotHandler {
	return &SlotHandler{slots: slots, recurring: recurring, metrics: metrics}
}

type cancelSlotRequest struct {
	Reason *string `json:"reason"`
}

// Create godoc
// @Summary Create an availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	req.ParentSlotID = nil

	slot, err := h.slots.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.IncSlotCreated()
	response.Created(c, slot)
}

// Update godoc
// @Summary Update an availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.UpdateSlotRequest true "Slot patch"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [patch]
func (h *SlotHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot patch"))
		return
	}

	slot, err := h.slots.Update(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Cancel godoc
// @Summary Cancel an availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/cancel [post]
func (h *SlotHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req cancelSlotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
			return
		}
	}

	slot, err := h.slots.Cancel(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Soft delete an availability slot
// @Tags Slots
// @Param id path string true "Slot ID"
// @Success 204
// @Router /slots/{id} [delete]
func (h *SlotHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.slots.SoftDelete(c.Request.Context(), c.Param("id"), claims.UserID, nil); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get godoc
// @Summary Get one of the caller's slots
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	slot, err := h.slots.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// List godoc
// @Summary List the caller's upcoming slots
// @Tags Slots
// @Produce json
// @Param from query string false "Start date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
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

	slots, err := h.slots.ListMine(c.Request.Context(), claims.UserID, from)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// GenerateRecurring godoc
// @Summary Expand a slot into weekly repetitions
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRecurringRequest true "Recurring payload"
// @Success 200 {object} response.Envelope
// @Router /slots/recurring [post]
func (h *SlotHandler) GenerateRecurring(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.GenerateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid recurring payload"))
		return
	}

	result, err := h.recurring.Generate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CancelRecurring godoc
// @Summary Cancel all active children of a recurring slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Base slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/recurring/cancel [post]
func (h *SlotHandler) CancelRecurring(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req cancelSlotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
			return
		}
	}

	cancelled, err := h.recurring.CancelGroup(c.Request.Context(), claims.UserID, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cancelled": cancelled}, nil)
}
