package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/service"
)

// DealHandler serves the anonymous /v1/deals/:token routes.  The token in
// the path is the only credential.
type DealHandler struct {
	errorResponder
	svc *service.Services
}

func NewDealHandler(s *service.Services, log *zap.Logger) *DealHandler {
	return &DealHandler{errorResponder: errorResponder{log: log}, svc: s}
}

func (h *DealHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.svc.Bookings.GetByToken(ctx, c.Param("token"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Confirm accepts the offer.  Repeating it is harmless.
func (h *DealHandler) Confirm(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	b, err := h.svc.Bookings.ConfirmOffer(ctx, c.Param("token"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *DealHandler) Payment(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.svc.Payments.GetByToken(ctx, c.Param("token"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *DealHandler) UploadProof(c echo.Context) error {
	file, closeFn, err := proofFile(c)
	if err != nil {
		return h.respond(c, err)
	}
	defer closeFn()
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.svc.Payments.UploadProofWithToken(ctx, c.Param("token"), file)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *DealHandler) Messages(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	msgs, err := h.svc.Conversations.BookingMessages(ctx, dealPrincipal(c), "")
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

func (h *DealHandler) PostMessage(c echo.Context) error {
	var req postReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	m, err := h.svc.Conversations.PostBookingMessage(ctx, dealPrincipal(c), "", req.input())
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *DealHandler) MarkRead(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	n, err := h.svc.Conversations.MarkBookingRead(ctx, dealPrincipal(c), "")
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": n})
}
