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

type bookingManager interface {
	Book(ctx context.Context, bookerID string, req dto.BookSlotRequest) (*models.AvailabilityBooking, error)
	Confirm(ctx context.Context, actorID, bookingID string) (*models.AvailabilityBooking, error)
	Cancel(ctx context.Context, actorID, bookingID string, reason string) (*models.AvailabilityBooking, error)
	Complete(ctx context.Context, actorID, bookingID string) (*models.AvailabilityBooking, error)
	ListForBooker(ctx context.Context, bookerID string) ([]models.AvailabilityBooking, error)
	ListForSlot(ctx context.Context, ownerID, slotID string) ([]models.AvailabilityBooking, error)
}

// BookingHandler exposes booking lifecycle endpoints.
type BookingHandler struct {
	service bookingManager
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Book godoc
// @Summary Book an availability slot
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.BookSlotRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Book(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.BookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}

	booking, err := h.service.Book(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Confirm godoc
// @Summary Confirm a pending booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	booking, err := h.service.Confirm(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Cancel godoc
// @Summary Cancel an active booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
			return
		}
	}

	booking, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Complete godoc
// @Summary Mark a confirmed booking as completed
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/complete [post]
func (h *BookingHandler) Complete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	booking, err := h.service.Complete(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// ListMine godoc
// @Summary List the caller's bookings
// @Tags Bookings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	bookings, err := h.service.ListForBooker(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// ListForSlot godoc
// @Summary List the booking history of one of the caller's slots
// @Tags Bookings
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/bookings [get]
func (h *BookingHandler) ListForSlot(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	bookings, err := h.service.ListForSlot(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}
