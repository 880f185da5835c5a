package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/middleware"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/service"
)

// RealtimeHandler authenticates websocket clients.  Browsers cannot set
// headers on the upgrade request, so the credential comes in the query:
// access_token for accounts, deal for guests.
type RealtimeHandler struct {
	errorResponder
	WS       *realtime.WSServer
	Bookings *service.BookingService
	Secret   string
}

func NewRealtimeHandler(ws *realtime.WSServer, s *service.Services, secret string, log *zap.Logger) *RealtimeHandler {
	if ws == nil {
		panic("handler: nil websocket server")
	}
	return &RealtimeHandler{errorResponder: errorResponder{log: log}, WS: ws, Bookings: s.Bookings, Secret: secret}
}

func (h *RealtimeHandler) Connect(c echo.Context) error {
	var p model.Principal
	if raw := c.QueryParam("access_token"); raw != "" {
		var err error
		if p, err = middleware.ParseAccessToken(h.Secret, raw); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}
	} else if token := c.QueryParam("deal"); token != "" {
		ctx, cancel := requestCtx(c)
		_, err := h.Bookings.GetByToken(ctx, token)
		cancel()
		if err != nil {
			return h.respond(c, err)
		}
		p = model.GuestPrincipal(token)
	} else {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing credentials"})
	}

	if err := h.WS.Serve(c.Response(), c.Request(), p); err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
	}
	return nil
}
