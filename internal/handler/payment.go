package handler

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/service"
)

// ProofOpener reads back a stored proof.
type ProofOpener interface {
	Open(ref string) (*os.File, error)
}

// PaymentHandler serves the staff and client payment endpoints.
type PaymentHandler struct {
	errorResponder
	Payments *service.PaymentService
	Proofs   ProofOpener
}

func NewPaymentHandler(s *service.Services, proofs ProofOpener, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{errorResponder: errorResponder{log: log}, Payments: s.Payments, Proofs: proofs}
}

type shareReq struct {
	PaymentNumber string `json:"payment_number" validate:"required,max=128"`
}

// ShareNumber handles POST /v1/bookings/:id/payment/number.
func (h *PaymentHandler) ShareNumber(c echo.Context) error {
	var req shareReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Payments.SharePaymentNumber(ctx, principal(c), c.Param("id"), req.PaymentNumber)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PaymentHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Payments.GetByBooking(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// UploadProof handles POST /v1/bookings/:id/payment/proof for the
// signed-in client.
func (h *PaymentHandler) UploadProof(c echo.Context) error {
	file, closeFn, err := proofFile(c)
	if err != nil {
		return h.respond(c, err)
	}
	defer closeFn()
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Payments.UploadProof(ctx, principal(c), c.Param("id"), file)
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type verifyReq struct {
	Status string `json:"status" validate:"required,oneof=verified rejected"`
}

// Verify handles POST /v1/payments/:id/verify.
func (h *PaymentHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := bind(c, &req); err != nil {
		return h.respond(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Payments.Verify(ctx, principal(c), c.Param("id"), model.PaymentStatus(req.Status))
	if err != nil {
		return h.respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Proof handles GET /v1/payments/:id/proof.
func (h *PaymentHandler) Proof(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	ref, err := h.Payments.ProofRef(ctx, principal(c), c.Param("id"))
	if err != nil {
		return h.respond(c, err)
	}
	f, err := h.Proofs.Open(ref)
	if err != nil {
		h.log.Error("open proof", zap.String("ref", ref), zap.Error(err))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "proof not found"})
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "read proof failed"})
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "read proof failed"})
	}
	hdr := c.Response().Header()
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set(echo.HeaderContentDisposition, `attachment; filename="proof`+mt.Extension()+`"`)
	return c.Stream(http.StatusOK, mt.String(), f)
}

// proofFile opens the multipart "proof" field.  A missing field yields an
// input without a body; the service decides how to answer it.
func proofFile(c echo.Context) (service.ProofInput, func(), error) {
	fh, err := c.FormFile("proof")
	if errors.Is(err, http.ErrMissingFile) {
		return service.ProofInput{}, func() {}, nil
	}
	if err != nil {
		return service.ProofInput{}, nil, &service.Error{Kind: service.KindValidation, Message: "invalid multipart body"}
	}
	f, err := fh.Open()
	if err != nil {
		return service.ProofInput{}, nil, &service.Error{Kind: service.KindValidation, Message: "unreadable proof file"}
	}
	return service.ProofInput{Name: fh.Filename, Body: f}, func() { _ = f.Close() }, nil
}
