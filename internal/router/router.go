// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/venue-booking/internal/handler"
	"github.com/iliyamo/venue-booking/internal/middleware"
	"github.com/iliyamo/venue-booking/internal/model"
)

// Handlers is everything the routes dispatch to.
type Handlers struct {
	Auth          *handler.AuthHandler
	Bookings      *handler.BookingHandler
	Deals         *handler.DealHandler
	Payments      *handler.PaymentHandler
	Conversations *handler.ConversationHandler
	Realtime      *handler.RealtimeHandler
}

// Limits are the rate-limit middlewares.  Nil entries are skipped.
type Limits struct {
	Global echo.MiddlewareFunc
	Deals  echo.MiddlewareFunc
}

// BodyLimit caps request bodies; proofs are the largest payload.
const BodyLimit = "8M"

var staff = []model.Role{model.RoleHallOwner, model.RoleManager, model.RoleAdmin}

// Register mounts every route on e.
func Register(e *echo.Echo, h Handlers, l Limits, jwtSecret string) {
	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1", echomw.BodyLimit(BodyLimit))
	if l.Global != nil {
		v1.Use(l.Global)
	}

	auth := v1.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	// Self-service booking works anonymously or for a signed-in user.
	v1.POST("/halls/:hall_id/bookings", h.Bookings.CreateSelfService, middleware.OptionalJWT(jwtSecret))

	registerDeals(v1, h, l)

	// WS authenticates from the query string.
	v1.GET("/ws", h.Realtime.Connect)

	authed := v1.Group("", middleware.JWTAuth(jwtSecret))
	authed.GET("/me", h.Auth.Me)
	registerBookings(authed, h)
	registerConversations(authed, h)
}

func registerDeals(v1 *echo.Group, h Handlers, l Limits) {
	g := v1.Group("/deals/:token")
	if l.Deals != nil {
		g.Use(l.Deals)
	}
	g.GET("", h.Deals.Get)
	g.POST("/confirm", h.Deals.Confirm)
	g.GET("/payment", h.Deals.Payment)
	g.POST("/payment/proof", h.Deals.UploadProof)
	g.GET("/messages", h.Deals.Messages)
	g.POST("/messages", h.Deals.PostMessage)
	g.POST("/messages/read", h.Deals.MarkRead)
}

// registerBookings mounts booking and payment routes.  Role gates are
// coarse; hall assignment and ownership are checked by the services.
func registerBookings(g *echo.Group, h Handlers) {
	isStaff := middleware.RequireRole(staff...)
	canVerify := middleware.RequireRole(model.RoleManager, model.RoleAdmin)

	g.POST("/halls/:hall_id/offers", h.Bookings.CreateOffer, isStaff)
	g.GET("/bookings", h.Bookings.List, isStaff)
	g.GET("/bookings/:id", h.Bookings.Get)
	g.PATCH("/bookings/:id/status", h.Bookings.SetStatus, isStaff)

	g.POST("/bookings/:id/payment/number", h.Payments.ShareNumber, canVerify)
	g.GET("/bookings/:id/payment", h.Payments.Get)
	g.POST("/bookings/:id/payment/proof", h.Payments.UploadProof, middleware.RequireRole(model.RoleUser))
	g.POST("/payments/:id/verify", h.Payments.Verify, canVerify)
	g.GET("/payments/:id/proof", h.Payments.Proof)
}

func registerConversations(g *echo.Group, h Handlers) {
	g.GET("/bookings/:id/messages", h.Conversations.BookingMessages)
	g.POST("/bookings/:id/messages", h.Conversations.PostBookingMessage)
	g.POST("/bookings/:id/messages/read", h.Conversations.MarkBookingRead)
	g.GET("/booking-chats", h.Conversations.BookingChats, middleware.RequireRole(staff...))

	g.POST("/sessions", h.Conversations.OpenSession, middleware.RequireRole(model.RoleUser))
	g.GET("/sessions", h.Conversations.Sessions, middleware.RequireRole(model.RoleUser, model.RoleAgency))
	g.GET("/sessions/:id/messages", h.Conversations.SessionMessages)
	g.POST("/sessions/:id/messages", h.Conversations.PostSessionMessage)
	g.POST("/sessions/:id/read", h.Conversations.MarkSessionRead)
	g.GET("/sessions/:id/unread", h.Conversations.SessionUnread)
	g.GET("/sessions/:id/payment-status", h.Conversations.SessionPaymentStatus)
}
