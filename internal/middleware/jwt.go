package middleware // reusable HTTP middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-booking/internal/model"
)

var errBadToken = errors.New("invalid token")

// ParseAccessToken validates an HS256 access token and returns the caller
// it names.  Tokens with an unknown role or without a subject are
// rejected, and so is everything when secret is empty.
func ParseAccessToken(secret, raw string) (model.Principal, error) {
	if secret == "" {
		// HMAC verifies happily against an empty key
		return model.Principal{}, errBadToken
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return model.Principal{}, errBadToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.Principal{}, errBadToken
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || !model.Role(role).Valid() {
		return model.Principal{}, errBadToken
	}
	return model.Principal{ID: sub, Role: model.Role(role)}, nil
}

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

// JWTAuth rejects requests without a valid Bearer access token and stores
// the resolved principal for the handlers.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			p, err := ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// OptionalJWT lets anonymous requests through.  A token that is present
// but invalid is still rejected so a client never silently loses its
// identity.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return next(c)
			}
			p, err := ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			SetPrincipal(c, p)
			return next(c)
		}
	}
}
