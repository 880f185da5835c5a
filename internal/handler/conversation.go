package handler

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/service"
)

// ConversationHandler serves booking chats and user/agency sessions.
type ConversationHandler struct {
	errorResponder
	Conversations *service.ConversationService
}

func NewConversationHandler(s *service.Services, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{errorResponder: errorResponder{log: log}, Conversations: s.Conversations}
}

type postReq struct {
	Content        string                `json:"content" validate:"max=8000"`
	MessageType    string                `json:"message_type"`
	FormData       json.RawMessage       `json:"form_data"`
	PaymentDetails *model.PaymentDetails `json:"payment_details"`
}

func (r postReq) input() service.PostInput {
	return service.PostInput{
		Content:        r.Content,
		MessageType:    model.MessageType(r.MessageType),
		FormData:       r.FormData,
		PaymentDetails: r.PaymentDetails,
	}
}

func (h *ConversationHandler) BookingMessages(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	msgs, err := h.Conversations.BookingMessages(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	unread, err := h.Conversations.BookingUnread(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs, "unread": unread})
}

func (h *ConversationHandler) PostBookingMessage(c echo.Context) error {
	var req postReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	m, err := h.Conversations.PostBookingMessage(ctx, principal(c), c.Param("id"), req.input())
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *ConversationHandler) MarkBookingRead(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	n, err := h.Conversations.MarkBookingRead(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": n})
}

// BookingChats handles GET /v1/booking-chats.
func (h *ConversationHandler) BookingChats(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Conversations.BookingChatSummaries(ctx, principal(c))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"conversations": out})
}

type openSessionReq struct {
	AgencyID string `json:"agency_id" validate:"required"`
}

func (h *ConversationHandler) OpenSession(c echo.Context) error {
	var req openSessionReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	cs, err := h.Conversations.OpenSession(ctx, principal(c), req.AgencyID)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *ConversationHandler) Sessions(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Conversations.Sessions(ctx, principal(c))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

func (h *ConversationHandler) SessionMessages(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	msgs, err := h.Conversations.SessionMessages(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

func (h *ConversationHandler) PostSessionMessage(c echo.Context) error {
	var req postReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	m, err := h.Conversations.PostSessionMessage(ctx, principal(c), c.Param("id"), req.input())
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *ConversationHandler) MarkSessionRead(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	n, err := h.Conversations.MarkSessionRead(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": n})
}

func (h *ConversationHandler) SessionUnread(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	n, err := h.Conversations.SessionUnread(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": n})
}

func (h *ConversationHandler) SessionPaymentStatus(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	sum, err := h.Conversations.SessionPaymentSummary(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}
