package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Malathy2002/hall-booking-website/internal/auth"
	"github.com/Malathy2002/hall-booking-website/internal/booking"
	"github.com/Malathy2002/hall-booking-website/internal/pkg/request"
	"github.com/Malathy2002/hall-booking-website/internal/pkg/response"
)

type Handler struct {
	service      booking.Service
	availability *booking.AvailabilityChecker
}

func NewHandler(service booking.Service, availability *booking.AvailabilityChecker) *Handler {
	return &Handler{
		service:      service,
		availability: availability,
	}
}

// List returns the authenticated customer's own bookings.
func (h *Handler) List(c *gin.Context) {
	h.list(c, func(f *booking.Filter) { f.CustomerID = auth.GetUserID(c) })
}

// ListForOwner returns bookings of halls owned by the authenticated user.
func (h *Handler) ListForOwner(c *gin.Context) {
	h.list(c, func(f *booking.Filter) { f.OwnerID = auth.GetUserID(c) })
}

func (h *Handler) list(c *gin.Context, scope func(*booking.Filter)) {
	var query ListBookingsRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	query.Normalize()

	filter := booking.Filter{
		HallID:    query.HallID,
		Status:    query.Status,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	scope(&filter)

	bookings, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, query.Page, query.PageSize, total))
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, err := body.ToRequest(auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	res, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := CreateBookingResponse{
		Booking:      NewBookingResponse(res.Booking),
		Reference:    res.Booking.Reference,
		PaymentOrder: NewCheckoutResponse(res.PaymentOrder),
	}
	if res.PaymentError != nil {
		resp.PaymentError = res.PaymentError.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Get(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), uri.ID, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Cancel(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}

	// The body is optional.
	var body CancelBookingBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	b, err := h.service.Cancel(c.Request.Context(), uri.ID, auth.GetUserID(c), body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"booking": NewBookingResponse(b),
	})
}

func (h *Handler) Confirm(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

func (h *Handler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id, actorID int64) (*booking.Booking, error)) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid booking id")
		return
	}

	b, err := fn(c.Request.Context(), uri.ID, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// Availability reports whether a hall is free on a date. Unauthenticated.
func (h *Handler) Availability(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		response.BadRequest(c, "invalid hall id")
		return
	}
	var query AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "date is required")
		return
	}
	date, err := booking.ParseDate(query.Date)
	if err != nil {
		response.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}

	conflict, err := h.availability.ConflictingBooking(c.Request.Context(), uri.ID, date)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := AvailabilityResponse{Available: conflict == nil}
	if conflict != nil {
		resp.ConflictingDate = conflict.EventDate.Format(booking.DateLayout)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) OwnerStats(c *gin.Context) {
	stats, err := h.service.OwnerStats(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOwnerStatsResponse(stats))
}
