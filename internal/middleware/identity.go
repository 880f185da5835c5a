package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-booking/internal/model"
)

// Context keys shared with the handlers.  user_id and role keep their
// plain names for the rate limiter and request log.
const (
	KeyPrincipal = "principal"
	KeyUserID    = "user_id"
	KeyRole      = "role"
)

// SetPrincipal stores p on the request context.
func SetPrincipal(c echo.Context, p model.Principal) {
	c.Set(KeyPrincipal, p)
	if p.ID != "" {
		c.Set(KeyUserID, p.ID)
	}
	c.Set(KeyRole, string(p.Role))
}

// PrincipalFrom returns the caller stored by JWTAuth or OptionalJWT.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(KeyPrincipal).(model.Principal)
	return p, ok
}

// currentUserID is the rate-limit identity: the user id, or "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(KeyUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
