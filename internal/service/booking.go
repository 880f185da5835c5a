package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/venue-booking/internal/authz"
	"github.com/iliyamo/venue-booking/internal/lock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/repository"
)

// BookingService owns the booking status machine and the deal token.
type BookingService struct {
	*core
}

// OfferInput describes a custom offer drafted by hall staff for a guest.
type OfferInput struct {
	HallID      string
	Guest       model.GuestContact
	BookingDate time.Time
	Terms       model.Terms
}

// SelfServiceInput describes a booking request placed by the client.
// UserID is taken from the caller when they are signed in.
type SelfServiceInput struct {
	HallID      string
	Guest       model.GuestContact
	BookingDate time.Time
	Terms       model.Terms
}

func normalizeGuest(g model.GuestContact) model.GuestContact {
	g.Name = strings.TrimSpace(g.Name)
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	g.Phone = strings.TrimSpace(g.Phone)
	return g
}

func validTerms(t model.Terms) error {
	if t.GuestCount < 0 {
		return invalid("guest_count must not be negative")
	}
	if t.TotalAmount < 0 {
		return invalid("total_amount must not be negative")
	}
	return nil
}

// CreateOffer drafts a custom-offer booking and mints its deal token.  The
// guest receives a link carrying the token.
func (s *BookingService) CreateOffer(ctx context.Context, actor model.Principal, in OfferInput) (*model.Booking, error) {
	in.Guest = normalizeGuest(in.Guest)
	if strings.TrimSpace(in.HallID) == "" {
		return nil, invalid("hall_id is required")
	}
	if in.Guest.Email == "" {
		return nil, invalid("guest email is required")
	}
	if err := validTerms(in.Terms); err != nil {
		return nil, err
	}
	h, err := s.hall(ctx, in.HallID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAct(actor, authz.CreateOffer, authz.Resource{Hall: h}) {
		return nil, forbidden()
	}
	token, err := s.NewToken()
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "token generation failed", Err: err}
	}

	now := s.Now()
	b := &model.Booking{
		ID:              s.NewID(),
		HallID:          h.ID,
		Guest:           in.Guest,
		BookingDate:     in.BookingDate.UTC(),
		Terms:           in.Terms,
		IsCustom:        true,
		CustomDealToken: &token,
		Status:          model.BookingCustomOffer,
		Origin:          model.OriginOwnerOffer,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.Atomic(ctx, func(tx repository.Tx) error {
		return tx.CreateBooking(ctx, b)
	}); err != nil {
		return nil, storeErr("booking", err)
	}
	s.Events.Publish(ctx, realtime.HallBookingChannel(b.HallID, b.ID),
		realtime.Event{Kind: realtime.EventBookingStatusChanged, Payload: bookingEvent(b, "")})

	s.notify(ctx, model.Email{
		To:      b.Guest.Email,
		Subject: "Your custom offer from " + h.Name,
		Body:    fmt.Sprintf("A custom offer is waiting for you. Review and confirm it here: %s", s.dealLink(token, "")),
	})
	return b, nil
}

// CreateSelfService records a client's booking request as pending.
func (s *BookingService) CreateSelfService(ctx context.Context, actor model.Principal, in SelfServiceInput) (*model.Booking, error) {
	in.Guest = normalizeGuest(in.Guest)
	if strings.TrimSpace(in.HallID) == "" {
		return nil, invalid("hall_id is required")
	}
	if in.BookingDate.IsZero() {
		return nil, invalid("booking_date is required")
	}
	var userID *string
	if actor.Role == model.RoleUser && actor.ID != "" {
		id := actor.ID
		userID = &id
	}
	if userID == nil && in.Guest.Email == "" {
		return nil, invalid("guest email is required for anonymous bookings")
	}
	if err := validTerms(in.Terms); err != nil {
		return nil, err
	}
	h, err := s.hall(ctx, in.HallID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	b := &model.Booking{
		ID:          s.NewID(),
		HallID:      h.ID,
		UserID:      userID,
		Guest:       in.Guest,
		BookingDate: in.BookingDate.UTC(),
		Terms:       in.Terms,
		Status:      model.BookingPending,
		Origin:      model.OriginSelfService,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.Atomic(ctx, func(tx repository.Tx) error {
		return tx.CreateBooking(ctx, b)
	}); err != nil {
		return nil, storeErr("booking", err)
	}
	s.Events.Publish(ctx, realtime.HallBookingChannel(b.HallID, b.ID),
		realtime.Event{Kind: realtime.EventBookingStatusChanged, Payload: bookingEvent(b, "")})

	s.notify(ctx, model.Email{
		To:      s.recipient(ctx, b),
		Subject: "Booking request received",
		Body:    fmt.Sprintf("Your request for %s on %s is pending review.", h.Name, b.BookingDate.Format("2006-01-02")),
	})
	return b, nil
}

// ConfirmOffer moves a custom offer to pending.  Confirming again returns
// the current booking unchanged.
func (s *BookingService) ConfirmOffer(ctx context.Context, token string) (*model.Booking, error) {
	if token == "" {
		return nil, notFound("booking")
	}
	cur, err := s.Store.BookingByToken(ctx, token)
	if err != nil {
		return nil, storeErr("booking", err)
	}
	if !authz.CanAct(model.GuestPrincipal(token), authz.ConfirmOffer, authz.ForBooking(cur, nil)) {
		return nil, notFound("booking")
	}

	release, err := s.acquire(ctx, lock.BookingKey(cur.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		out   *model.Booking
		ob    outbox
		moved bool
	)
	err = s.Store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBookingByToken(ctx, token)
		if err != nil {
			return err
		}
		out = b
		if b.Status != model.BookingCustomOffer {
			return nil
		}
		now := s.Now()
		ok, err := tx.CompareAndSetBookingStatus(ctx, b.ID, model.BookingCustomOffer, model.BookingPending, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		b.Status, b.UpdatedAt, moved = model.BookingPending, now, true

		msg := s.systemMessage(b.ID, model.MessageSystem, "Offer confirmed by the guest")
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}
		key := realtime.HallBookingChannel(b.HallID, b.ID)
		ob.add(key, realtime.EventBookingStatusChanged, bookingEvent(b, model.BookingCustomOffer))
		ob.add(key, realtime.EventMessage, msg)
		return nil
	})
	if err != nil {
		return nil, storeErr("booking", err)
	}
	if moved {
		s.flush(ctx, &ob)
	}
	return out, nil
}

// SetStatus approves or rejects a pending booking.  Repeating the current
// status is a no-op; every other move out of a non-pending state is a
// conflict.
func (s *BookingService) SetStatus(ctx context.Context, actor model.Principal, bookingID string, to model.BookingStatus) (*model.Booking, error) {
	if to != model.BookingApproved && to != model.BookingRejected {
		return nil, invalid("status must be approved or rejected")
	}
	cur, err := s.Store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr("booking", err)
	}
	h, err := s.hall(ctx, cur.HallID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAct(actor, authz.SetBookingStatus, authz.ForBooking(cur, h)) {
		return nil, forbidden()
	}

	release, err := s.acquire(ctx, lock.BookingKey(cur.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		out   *model.Booking
		ob    outbox
		moved bool
	)
	err = s.Store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		out = b
		if b.Status == to {
			return nil
		}
		if !b.Status.CanTransition(to) {
			return conflict(fmt.Sprintf("booking is %s", b.Status))
		}
		now := s.Now()
		ok, err := tx.CompareAndSetBookingStatus(ctx, b.ID, b.Status, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("booking changed concurrently")
		}
		prev := b.Status
		b.Status, b.UpdatedAt, moved = to, now, true

		msg := s.systemMessage(b.ID, model.MessageSystem, "Booking "+string(to))
		if err := tx.AppendMessage(ctx, msg); err != nil {
			return err
		}
		key := realtime.HallBookingChannel(b.HallID, b.ID)
		ob.add(key, realtime.EventBookingStatusChanged, bookingEvent(b, prev))
		ob.add(key, realtime.EventMessage, msg)
		if b.UserID != nil {
			ob.add(realtime.UserChannel(*b.UserID), realtime.EventBookingStatusChanged, bookingEvent(b, prev))
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("booking", err)
	}
	if !moved {
		return out, nil
	}
	s.flush(ctx, &ob)
	release()

	s.notify(ctx, model.Email{
		To:      s.recipient(ctx, out),
		Subject: "Your booking at " + h.Name + " was " + string(to),
		Body:    fmt.Sprintf("Booking %s for %s is now %s.", out.ID, out.BookingDate.Format("2006-01-02"), to),
	})
	return out, nil
}

// Get returns a booking the actor may view.
func (s *BookingService) Get(ctx context.Context, actor model.Principal, bookingID string) (*model.Booking, error) {
	b, err := s.Store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr("booking", err)
	}
	h, err := s.hall(ctx, b.HallID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAct(actor, authz.ViewBooking, authz.ForBooking(b, h)) {
		return nil, forbidden()
	}
	return b, nil
}

// GetByToken resolves a deal token.  Any status is visible to the holder.
func (s *BookingService) GetByToken(ctx context.Context, token string) (*model.Booking, error) {
	b, err := s.Store.BookingByToken(ctx, token)
	if err != nil {
		return nil, storeErr("booking", err)
	}
	if !authz.TokenMatches(token, b.Token()) {
		return nil, notFound("booking")
	}
	return b, nil
}

// List returns the bookings of the halls the actor works for, newest
// first.  Custom offers never appear here.
func (s *BookingService) List(ctx context.Context, actor model.Principal, statuses []model.BookingStatus) ([]model.Booking, error) {
	f, err := s.staffFilter(ctx, actor)
	if err != nil {
		return nil, err
	}
	f.Statuses, err = listedStatuses(statuses)
	if err != nil {
		return nil, err
	}
	if len(f.Statuses) == 0 {
		return []model.Booking{}, nil
	}
	out, err := s.Store.ListBookings(ctx, f)
	if err != nil {
		return nil, storeErr("bookings", err)
	}
	if out == nil {
		out = []model.Booking{}
	}
	return out, nil
}

// staffFilter scopes a listing to the actor's halls, read live.
func (c *core) staffFilter(ctx context.Context, actor model.Principal) (repository.BookingFilter, error) {
	var (
		ids []string
		err error
	)
	switch actor.Role {
	case model.RoleAdmin:
		return repository.BookingFilter{AllHalls: true}, nil
	case model.RoleHallOwner:
		ids, err = c.Halls.HallIDsOwnedBy(ctx, actor.ID)
	case model.RoleManager:
		ids, err = c.Halls.HallIDsManagedBy(ctx, actor.ID)
	default:
		return repository.BookingFilter{}, forbidden()
	}
	if err != nil {
		return repository.BookingFilter{}, storeErr("halls", err)
	}
	return repository.BookingFilter{HallIDs: ids}, nil
}

// listedStatuses intersects the requested filter with the listed set.  An
// empty request means every listed status.
func listedStatuses(requested []model.BookingStatus) ([]model.BookingStatus, error) {
	if len(requested) == 0 {
		return model.ListedBookingStatuses, nil
	}
	var out []model.BookingStatus
	for _, r := range requested {
		if !r.Valid() {
			return nil, invalid(fmt.Sprintf("unknown status %q", r))
		}
		for _, l := range model.ListedBookingStatuses {
			if r == l {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

// resolveBooking loads the booking addressed by a request.  Token holders
// address it by token, everyone else by id.
func (c *core) resolveBooking(ctx context.Context, actor model.Principal, bookingID string) (*model.Booking, error) {
	var (
		b   *model.Booking
		err error
	)
	if actor.Role == model.RoleGuestToken {
		b, err = c.Store.BookingByToken(ctx, actor.DealToken)
		if err == nil && bookingID != "" && b.ID != bookingID {
			err = repository.ErrNotFound
		}
	} else {
		b, err = c.Store.BookingByID(ctx, bookingID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("booking")
		}
		return nil, storeErr("booking", err)
	}
	return b, nil
}
