package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/service"
)

func TestOfferConfirmFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, token := f.offer(t)
	assert.Equal(t, model.BookingCustomOffer, b.Status)
	assert.Equal(t, model.OriginOwnerOffer, b.Origin)
	assert.Len(t, token, 64)

	mails := f.mail.to("g@x.com")
	require.Len(t, mails, 1)
	assert.Contains(t, mails[0].Body, "https://venue.test/deals/"+token)

	listed, err := f.svc.Bookings.List(ctx, owner, nil)
	require.NoError(t, err)
	assert.Empty(t, listed, "custom offers stay out of staff listings")

	confirmed, err := f.svc.Bookings.ConfirmOffer(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, confirmed.Status)

	again, err := f.svc.Bookings.ConfirmOffer(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, again.Status)
	assert.Equal(t, b.ID, again.ID)

	listed, err = f.svc.Bookings.List(ctx, owner, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, b.ID, listed[0].ID)

	kinds := f.events.kinds(realtime.HallBookingChannel(hallID, b.ID))
	assert.Equal(t, []realtime.EventKind{
		realtime.EventBookingStatusChanged, // created
		realtime.EventBookingStatusChanged, // confirmed
		realtime.EventMessage,
	}, kinds)
}

func TestConfirmOfferUnknownToken(t *testing.T) {
	f := newFixture(t)
	f.offer(t)
	_, err := f.svc.Bookings.ConfirmOffer(context.Background(), strings.Repeat("0", 64))
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.svc.Bookings.ConfirmOffer(context.Background(), "")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestGetByTokenHidesMismatch(t *testing.T) {
	f := newFixture(t)
	b, token := f.offer(t)

	got, err := f.svc.Bookings.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = f.svc.Bookings.GetByToken(context.Background(), token[:63]+"x")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCreateOfferRequiresHallStaff(t *testing.T) {
	f := newFixture(t)
	in := service.OfferInput{HallID: hallID, Guest: model.GuestContact{Email: "g@x.com"}, BookingDate: bookingDate}

	_, err := f.svc.Bookings.CreateOffer(context.Background(), outside, in)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	_, err = f.svc.Bookings.CreateOffer(context.Background(), client, in)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
	_, err = f.svc.Bookings.CreateOffer(context.Background(), manager, in)
	assert.NoError(t, err)

	in.Guest.Email = ""
	_, err = f.svc.Bookings.CreateOffer(context.Background(), manager, in)
	assert.ErrorIs(t, err, service.ErrValidation)

	in.HallID = "missing"
	in.Guest.Email = "g@x.com"
	_, err = f.svc.Bookings.CreateOffer(context.Background(), admin, in)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestSelfServiceBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.request(t)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, model.OriginSelfService, b.Origin)
	require.NotNil(t, b.UserID)
	assert.Equal(t, client.ID, *b.UserID)
	assert.Empty(t, b.Token())
	assert.Len(t, f.mail.to("client@example.com"), 1)

	_, err := f.svc.Bookings.CreateSelfService(ctx, model.Principal{}, service.SelfServiceInput{
		HallID: hallID, BookingDate: bookingDate,
	})
	assert.ErrorIs(t, err, service.ErrValidation, "anonymous requests need a contact email")

	got, err := f.svc.Bookings.Get(ctx, client, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	_, err = f.svc.Bookings.Get(ctx, other, b.ID)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
}

func TestStatusOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t)

	_, err := f.svc.Bookings.SetStatus(ctx, owner, b.ID, model.BookingPending)
	assert.ErrorIs(t, err, service.ErrValidation)

	approved, err := f.svc.Bookings.SetStatus(ctx, owner, b.ID, model.BookingApproved)
	require.NoError(t, err)
	assert.Equal(t, model.BookingApproved, approved.Status)

	same, err := f.svc.Bookings.SetStatus(ctx, owner, b.ID, model.BookingApproved)
	require.NoError(t, err, "repeating the current status is a no-op")
	assert.Equal(t, model.BookingApproved, same.Status)

	_, err = f.svc.Bookings.SetStatus(ctx, owner, b.ID, model.BookingRejected)
	assert.ErrorIs(t, err, service.ErrConflict)

	offer, _ := f.offer(t)
	_, err = f.svc.Bookings.SetStatus(ctx, owner, offer.ID, model.BookingApproved)
	assert.ErrorIs(t, err, service.ErrConflict, "offers must be confirmed first")

	got, err := f.svc.Bookings.Get(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingApproved, got.Status)
}

func TestConcurrentSetStatusHasOneWinner(t *testing.T) {
	f := newFixture(t)
	b := f.request(t)

	targets := []model.BookingStatus{model.BookingApproved, model.BookingRejected}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to model.BookingStatus) {
			defer wg.Done()
			_, errs[i] = f.svc.Bookings.SetStatus(context.Background(), owner, b.ID, to)
		}(i, to)
	}
	wg.Wait()

	var winner model.BookingStatus
	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
			winner = targets[i]
		} else {
			assert.ErrorIs(t, err, service.ErrConflict)
		}
	}
	require.Equal(t, 1, wins)

	got, err := f.svc.Bookings.Get(context.Background(), owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, winner, got.Status)
}

func TestListScopesToAssignedHalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t)

	mine, err := f.svc.Bookings.List(ctx, manager, nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, b.ID, mine[0].ID)

	none, err := f.svc.Bookings.List(ctx, outside, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := f.svc.Bookings.List(ctx, admin, []model.BookingStatus{model.BookingPending})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	approvedOnly, err := f.svc.Bookings.List(ctx, admin, []model.BookingStatus{model.BookingApproved})
	require.NoError(t, err)
	assert.Empty(t, approvedOnly)

	_, err = f.svc.Bookings.List(ctx, admin, []model.BookingStatus{"bogus"})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = f.svc.Bookings.List(ctx, client, nil)
	assert.ErrorIs(t, err, service.ErrNotAuthorized)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errBoom
	b := f.request(t)
	_, err := f.svc.Bookings.SetStatus(context.Background(), owner, b.ID, model.BookingApproved)
	assert.NoError(t, err)
}
