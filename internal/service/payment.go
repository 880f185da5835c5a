package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/authz"
	"github.com/iliyamo/venue-booking/internal/lock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/repository"
	"github.com/iliyamo/venue-booking/internal/upload"
)

// ProofStore persists a proof-of-payment blob and returns its reference.
type ProofStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ProofInput is an uploaded proof file.
type ProofInput struct {
	Name string
	Body io.Reader
}

// PaymentService owns the payment status machine.  A booking has at most
// one payment; it is created lazily by the first operation that needs it.
type PaymentService struct {
	*core
}

// paymentFor returns the booking's payment, creating it inside tx when
// absent.
func (s *PaymentService) paymentFor(ctx context.Context, tx repository.Tx, b *model.Booking, status model.PaymentStatus) (*model.Payment, bool, error) {
	p, err := tx.LockPaymentByBooking(ctx, b.ID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	now := s.Now()
	p = &model.Payment{
		ID:        s.NewID(),
		BookingID: b.ID,
		UserID:    b.UserID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreatePayment(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// SharePaymentNumber gives the guest the account to pay into.  It mints
// the deal token when the booking has none yet, so the guest can reach
// the payment page.
func (s *PaymentService) SharePaymentNumber(ctx context.Context, actor model.Principal, bookingID, number string) (*model.Payment, error) {
	cur, err := s.Store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr("booking", err)
	}
	h, err := s.hall(ctx, cur.HallID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAct(actor, authz.SharePaymentNumber, authz.ForBooking(cur, h)) {
		return nil, forbidden()
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, invalid("payment_number is required")
	}

	release, err := s.acquire(ctx, lock.BookingKey(cur.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		out   *model.Payment
		token string
		ob    outbox
	)
	err = s.Store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == model.BookingRejected {
			return conflict("booking is rejected")
		}
		token = b.Token()
		if token == "" {
			if token, err = s.NewToken(); err != nil {
				return err
			}
			if _, err := tx.SetBookingToken(ctx, b.ID, token, s.Now()); err != nil {
				return err
			}
		}
		p, _, err := s.paymentFor(ctx, tx, b, model.PaymentAwaitingPayment)
		if err != nil {
			return err
		}
		if p.Status == model.PaymentVerified {
			return conflict("payment is already verified")
		}
		p.PaymentNumber = number
		p.SharedByManager = true
		// a proof awaiting review keeps its state; the new number only
		// applies to the next transfer
		if !p.Status.AwaitingDecision() {
			p.Status = model.PaymentAwaitingPayment
		}
		p.UpdatedAt = s.Now()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p

		msg := s.systemMessage(b.ID, model.MessagePaymentRequest, "Payment number shared: "+number)
		msg.PaymentDetails = &model.PaymentDetails{TotalAmount: b.Terms.TotalAmount, Reference: number}
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}
		key := realtime.HallBookingChannel(b.HallID, b.ID)
		ob.add(key, realtime.EventPaymentStatusChanged, paymentEvent(p))
		ob.add(key, realtime.EventMessage, msg)
		cur = b
		return nil
	})
	if err != nil {
		return nil, storeErr("payment", err)
	}
	s.flush(ctx, &ob)
	release()

	s.notify(ctx, model.Email{
		To:      s.recipient(ctx, cur),
		Subject: "Payment details for your booking at " + h.Name,
		Body: fmt.Sprintf("Please transfer the amount due to %s and upload your receipt here: %s",
			number, s.dealLink(token, "/payment")),
	})
	return out, nil
}

// UploadProof attaches a proof for the signed-in owner of the booking.
func (s *PaymentService) UploadProof(ctx context.Context, actor model.Principal, bookingID string, file ProofInput) (*model.Payment, error) {
	b, err := s.resolveBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	return s.uploadProof(ctx, actor, b, file)
}

// UploadProofWithToken attaches a proof for an anonymous deal-token holder.
func (s *PaymentService) UploadProofWithToken(ctx context.Context, token string, file ProofInput) (*model.Payment, error) {
	actor := model.GuestPrincipal(token)
	b, err := s.resolveBooking(ctx, actor, "")
	if err != nil {
		return nil, err
	}
	return s.uploadProof(ctx, actor, b, file)
}

func (s *PaymentService) uploadProof(ctx context.Context, actor model.Principal, b *model.Booking, file ProofInput) (*model.Payment, error) {
	if !authz.CanAct(actor, authz.UploadProof, authz.ForBooking(b, nil)) {
		return nil, forbidden()
	}
	if b.Status == model.BookingRejected {
		return nil, conflict("booking is rejected")
	}
	if file.Body == nil {
		return nil, invalid("proof file is required")
	}
	ref, err := s.Uploads.Save(ctx, file.Name, file.Body)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrTooLarge), errors.Is(err, upload.ErrUnsupportedType), errors.Is(err, upload.ErrEmpty):
			return nil, invalid(err.Error())
		}
		return nil, upstream("upload store", err)
	}
	if ref == "" {
		return nil, invalid("proof file is required")
	}

	release, err := s.acquire(ctx, lock.BookingKey(b.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		out *model.Payment
		ob  outbox
	)
	err = s.Store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if b.Status == model.BookingRejected {
			return conflict("booking is rejected")
		}
		p, _, err := s.paymentFor(ctx, tx, b, model.PaymentPending)
		if err != nil {
			return err
		}
		if p.Status == model.PaymentVerified {
			return conflict("payment is already verified")
		}
		p.ProofImage = ref
		p.Status = model.PaymentAwaitingVerification
		p.VerifiedBy = nil
		p.UpdatedAt = s.Now()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p

		msg := s.systemMessage(b.ID, model.MessageSystem, "Payment proof uploaded")
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}
		key := realtime.HallBookingChannel(b.HallID, b.ID)
		ob.add(key, realtime.EventPaymentStatusChanged, paymentEvent(p))
		ob.add(key, realtime.EventMessage, msg)
		return nil
	})
	if err != nil {
		s.Log.Info("proof stored but not attached", zap.String("booking", b.ID), zap.String("ref", ref), zap.Error(err))
		return nil, storeErr("payment", err)
	}
	s.flush(ctx, &ob)
	return out, nil
}

// Verify records the staff decision on an uploaded proof.
func (s *PaymentService) Verify(ctx context.Context, actor model.Principal, paymentID string, decision model.PaymentStatus) (*model.Payment, error) {
	if decision != model.PaymentVerified && decision != model.PaymentRejected {
		return nil, invalid("decision must be verified or rejected")
	}
	pay, err := s.Store.PaymentByID(ctx, paymentID)
	if err != nil {
		return nil, storeErr("payment", err)
	}
	cur, err := s.Store.BookingByID(ctx, pay.BookingID)
	if err != nil {
		return nil, storeErr("booking", err)
	}
	h, err := s.hall(ctx, cur.HallID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAct(actor, authz.VerifyPayment, authz.ForBooking(cur, h)) {
		return nil, forbidden()
	}

	release, err := s.acquire(ctx, lock.BookingKey(cur.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		out *model.Payment
		ob  outbox
	)
	err = s.Store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, cur.ID)
		if err != nil {
			return err
		}
		if b.Status == model.BookingRejected {
			return conflict("booking is rejected")
		}
		p, err := tx.LockPaymentByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if !p.Status.AwaitingDecision() {
			return conflict(fmt.Sprintf("payment is %s", p.Status))
		}
		verifier := actor.ID
		p.Status = decision
		p.VerifiedBy = &verifier
		p.UpdatedAt = s.Now()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p

		text := "Payment proof rejected"
		if decision == model.PaymentVerified {
			text = "Payment verified"
		}
		msg := s.systemMessage(b.ID, model.MessageSystem, text)
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}
		key := realtime.HallBookingChannel(b.HallID, b.ID)
		ob.add(key, realtime.EventPaymentStatusChanged, paymentEvent(p))
		if decision == model.PaymentVerified {
			ob.add(key, realtime.EventPaymentConfirmed, PaymentConfirmedEvent{BookingID: b.ID, PaymentID: p.ID})
		}
		ob.add(key, realtime.EventMessage, msg)
		cur = b
		return nil
	})
	if err != nil {
		return nil, storeErr("payment", err)
	}
	s.flush(ctx, &ob)
	release()

	subject := "Your payment was verified"
	if decision == model.PaymentRejected {
		subject = "Your payment proof was not accepted"
	}
	s.notify(ctx, model.Email{
		To:      s.recipient(ctx, cur),
		Subject: subject,
		Body:    fmt.Sprintf("Booking %s at %s: payment %s.", cur.ID, h.Name, decision),
	})
	return out, nil
}

// GetByBooking returns the payment of a booking the actor may view.
func (s *PaymentService) GetByBooking(ctx context.Context, actor model.Principal, bookingID string) (*model.Payment, error) {
	b, err := s.resolveBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	var h *model.Hall
	if actor.Role.Staff() {
		if h, err = s.hall(ctx, b.HallID); err != nil {
			return nil, err
		}
	}
	if !authz.CanAct(actor, authz.ViewBooking, authz.ForBooking(b, h)) {
		return nil, forbidden()
	}
	p, err := s.Store.PaymentByBooking(ctx, b.ID)
	if err != nil {
		return nil, storeErr("payment", err)
	}
	return p, nil
}

// GetByToken returns the payment of the booking behind token.
func (s *PaymentService) GetByToken(ctx context.Context, token string) (*model.Payment, error) {
	return s.GetByBooking(ctx, model.GuestPrincipal(token), "")
}

// ProofRef returns the stored proof reference of a payment the actor may
// view.
func (s *PaymentService) ProofRef(ctx context.Context, actor model.Principal, paymentID string) (string, error) {
	p, err := s.Store.PaymentByID(ctx, paymentID)
	if err != nil {
		return "", storeErr("payment", err)
	}
	b, err := s.Store.BookingByID(ctx, p.BookingID)
	if err != nil {
		return "", storeErr("booking", err)
	}
	h, err := s.hall(ctx, b.HallID)
	if err != nil {
		return "", err
	}
	if !authz.CanAct(actor, authz.ViewBooking, authz.ForBooking(b, h)) {
		return "", forbidden()
	}
	if p.ProofImage == "" {
		return "", notFound("proof")
	}
	return p.ProofImage, nil
}
