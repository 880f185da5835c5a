package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
)

func TestAtomicDiscardsFailedUnit(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.Atomic(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.CreateBooking(ctx, &model.Booking{ID: "b1", HallID: "h1", Status: model.BookingPending}))
		return errors.New("abort")
	})
	require.Error(t, err)
	_, err = s.BookingByID(ctx, "b1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOnePaymentPerBooking(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
		return tx.CreatePayment(ctx, &model.Payment{ID: "p1", BookingID: "b1"})
	}))
	err := s.Atomic(ctx, func(tx repository.Tx) error {
		return tx.CreatePayment(ctx, &model.Payment{ID: "p2", BookingID: "b1"})
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestTokenWrittenOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
		if err := tx.CreateBooking(ctx, &model.Booking{ID: "b1"}); err != nil {
			return err
		}
		ok, err := tx.SetBookingToken(ctx, "b1", "first", now)
		assert.True(t, ok)
		if err != nil {
			return err
		}
		ok, err = tx.SetBookingToken(ctx, "b1", "second", now)
		assert.False(t, ok)
		return err
	}))
	b, err := s.BookingByToken(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
}

func TestMarkReadOnlyOppositeSender(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
		for i, sender := range []model.SenderRole{model.SenderClient, model.SenderOwner, model.SenderClient} {
			m := model.Message{ID: string(rune('a' + i)), ConversationID: "b1", Kind: model.ConversationBooking, Sender: sender}
			if err := tx.AppendMessage(ctx, &m); err != nil {
				return err
			}
		}
		return nil
	}))

	var n int
	require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) (err error) {
		n, err = tx.MarkRead(ctx, "b1", model.SenderClient)
		return err
	}))
	assert.Equal(t, 2, n)
	unread, _ := s.CountUnread(ctx, "b1", model.SenderOwner)
	assert.Equal(t, 1, unread)
	unread, _ = s.CountUnread(ctx, "b1", model.SenderClient)
	assert.Equal(t, 0, unread)
}

func TestListBookingsOrdersNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
		for i, id := range []string{"old", "mid", "new"} {
			b := model.Booking{ID: id, HallID: "h1", Status: model.BookingPending, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
			if err := tx.CreateBooking(ctx, &b); err != nil {
				return err
			}
		}
		return tx.CreateBooking(ctx, &model.Booking{ID: "offer", HallID: "h1", Status: model.BookingCustomOffer})
	}))
	out, err := s.ListBookings(ctx, repository.BookingFilter{HallIDs: []string{"h1"}, Statuses: model.ListedBookingStatuses})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "new", out[0].ID)
	assert.Equal(t, "old", out[2].ID)
}
