// Package handler exposes the booking HTTP ingress.
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/response"
)

// BookingHandler handles booking HTTP requests.
type BookingHandler struct {
	svc *service.BookingService
}

// NewBookingHandler creates a BookingHandler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// RegisterRoutes registers the booking routes on the router group.
func (h *BookingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings", h.CreateBooking)
	rg.GET("/bookings/:id", h.GetBooking)
	rg.POST("/bookings/:id/payments/retry", h.RetryPayment)
}

// CreateBookingRequest is the create command body.
type CreateBookingRequest struct {
	UserID   string          `json:"user_id" binding:"required"`
	ItemRef  string          `json:"item_ref" binding:"required"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
	Currency string          `json:"currency"`
}

// CreateBooking accepts a booking and returns 202 with the PENDING record.
// The saga completes asynchronously; clients poll GetBooking.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	booking, err := h.svc.CreateBooking(c.Request.Context(), service.CreateBookingInput{
		UserID:   req.UserID,
		ItemRef:  req.ItemRef,
		Quantity: req.Quantity,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		if isValidationError(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}

	response.Accepted(c, gin.H{
		"booking_id": booking.ID,
		"status":     booking.Status,
	})
}

// GetBooking returns the booking record.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.svc.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			response.NotFound(c, "booking not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, booking)
}

// RetryPayment re-kicks the payment leg of a PENDING booking.
func (h *BookingHandler) RetryPayment(c *gin.Context) {
	err := h.svc.RetryPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBookingNotFound):
			response.NotFound(c, "booking not found")
		case errors.Is(err, domain.ErrNotPending):
			response.Conflict(c, "booking is not pending")
		case errors.Is(err, domain.ErrVersionConflict):
			response.Conflict(c, "booking changed concurrently, retry")
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Accepted(c, gin.H{"status": "accepted"})
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidUserID) ||
		errors.Is(err, domain.ErrInvalidItemRef) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrInvalidAmount)
}
