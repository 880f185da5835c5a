package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/service"
)

// BookingHandler serves booking creation, listing and status changes.
type BookingHandler struct {
	errorResponder
	Bookings *service.BookingService
}

func NewBookingHandler(s *service.Services, log *zap.Logger) *BookingHandler {
	return &BookingHandler{errorResponder: errorResponder{log: log}, Bookings: s.Bookings}
}

type bookingReq struct {
	GuestName     string   `json:"guest_name" validate:"max=255"`
	GuestEmail    string   `json:"guest_email" validate:"omitempty,email"`
	GuestPhone    string   `json:"guest_phone" validate:"max=64"`
	BookingDate   string   `json:"booking_date" validate:"required"`
	MenuID        *string  `json:"menu_id"`
	DecorationIDs []string `json:"decoration_ids"`
	GuestCount    int      `json:"guest_count" validate:"gte=0"`
	TotalAmount   int64    `json:"total_amount" validate:"gte=0"`
	Notes         string   `json:"notes"`
}

func (r bookingReq) parts() (model.GuestContact, time.Time, model.Terms, error) {
	date, err := parseDate(r.BookingDate)
	if err != nil {
		return model.GuestContact{}, time.Time{}, model.Terms{}, err
	}
	return model.GuestContact{Name: r.GuestName, Email: r.GuestEmail, Phone: r.GuestPhone},
		date,
		model.Terms{
			MenuID:        r.MenuID,
			DecorationIDs: r.DecorationIDs,
			GuestCount:    r.GuestCount,
			TotalAmount:   r.TotalAmount,
			Notes:         r.Notes,
		}, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, &service.Error{Kind: service.KindValidation, Message: "invalid booking_date"}
}

// CreateSelfService handles POST /v1/halls/:hall_id/bookings.
func (h *BookingHandler) CreateSelfService(c echo.Context) error {
	var req bookingReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	guest, date, terms, err := req.parts()
	if err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Bookings.CreateSelfService(ctx, principal(c), service.SelfServiceInput{
		HallID: c.Param("hall_id"), Guest: guest, BookingDate: date, Terms: terms,
	})
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// CreateOffer handles POST /v1/halls/:hall_id/offers.  The deal token is
// only ever sent to the guest by email.
func (h *BookingHandler) CreateOffer(c echo.Context) error {
	var req bookingReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	guest, date, terms, err := req.parts()
	if err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Bookings.CreateOffer(ctx, principal(c), service.OfferInput{
		HallID: c.Param("hall_id"), Guest: guest, BookingDate: date, Terms: terms,
	})
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/bookings?status=pending,approved.
func (h *BookingHandler) List(c echo.Context) error {
	var statuses []model.BookingStatus
	for _, s := range strings.Split(c.QueryParam("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, model.BookingStatus(s))
		}
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Bookings.List(ctx, principal(c), statuses)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

func (h *BookingHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Bookings.Get(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// SetStatus handles PATCH /v1/bookings/:id/status.
func (h *BookingHandler) SetStatus(c echo.Context) error {
	var req statusReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.Bookings.SetStatus(ctx, principal(c), c.Param("id"), model.BookingStatus(req.Status))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
