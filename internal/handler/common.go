package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/middleware"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/service"
)

const requestTimeout = 10 * time.Second

// Validator adapts go-playground/validator to echo.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator { return &Validator{v: validator.New()} }

func (cv *Validator) Validate(i interface{}) error { return cv.v.Struct(i) }

// bind decodes and validates the body into dst.  Failures come back as
// validation errors for respond.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return &service.Error{Kind: service.KindValidation, Message: "invalid body"}
	}
	if err := c.Validate(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return &service.Error{Kind: service.KindValidation, Message: "invalid " + ve[0].Field()}
		}
		return &service.Error{Kind: service.KindValidation, Message: "invalid body"}
	}
	return nil
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// principal returns the caller set by the JWT middleware.  Routes that
// reach here without one are public, so a zero Principal is returned.
func principal(c echo.Context) model.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

// dealPrincipal is the anonymous caller of a /deals/:token route.
func dealPrincipal(c echo.Context) model.Principal {
	return model.GuestPrincipal(c.Param("token"))
}

var statusByKind = map[service.Kind]int{
	service.KindNotFound:      http.StatusNotFound,
	service.KindNotAuthorized: http.StatusForbidden,
	service.KindConflict:      http.StatusConflict,
	service.KindValidation:    http.StatusBadRequest,
	service.KindUpstream:      http.StatusBadGateway,
	service.KindInternal:      http.StatusInternalServerError,
}

// errorResponder writes service errors as {"error": "..."}.  Internal
// errors are logged with their cause and shown generically.
type errorResponder struct {
	log *zap.Logger
}

func (r errorResponder) respond(c echo.Context, err error) error {
	kind := service.KindOf(err)
	msg := "internal error"
	var se *service.Error
	if errors.As(err, &se) && se.Message != "" && kind != service.KindInternal {
		msg = se.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "request timed out"})
	}
	if kind == service.KindInternal || kind == service.KindUpstream {
		r.log.Error("request failed", zap.String("route", c.Path()), zap.Error(err))
	}
	return c.JSON(statusByKind[kind], echo.Map{"error": msg})
}
