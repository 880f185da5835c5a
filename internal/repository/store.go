package repository

import (
	"context"
	"time"

	"github.com/iliyamo/venue-booking/internal/model"
)

// BookingFilter restricts ListBookings.  With AllHalls false only HallIDs
// are considered, so an empty HallIDs yields no rows.
type BookingFilter struct {
	HallIDs  []string
	AllHalls bool
	Statuses []model.BookingStatus
}

// Reader is the non-locking read side of the store.
type Reader interface {
	BookingByID(ctx context.Context, id string) (*model.Booking, error)
	BookingByToken(ctx context.Context, token string) (*model.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)

	PaymentByID(ctx context.Context, id string) (*model.Payment, error)
	PaymentByBooking(ctx context.Context, bookingID string) (*model.Payment, error)

	// MessagesByConversation returns messages in creation order.
	MessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	CountUnread(ctx context.Context, conversationID string, sender model.SenderRole) (int, error)
	// BookingMessages returns booking-kind messages of the given
	// conversations, or of all conversations when ids is nil.
	BookingMessages(ctx context.Context, conversationIDs []string) ([]model.Message, error)

	SessionByID(ctx context.Context, id string) (*model.ChatSession, error)
	SessionByPair(ctx context.Context, userID, agencyID string) (*model.ChatSession, error)
	SessionsByParticipant(ctx context.Context, participantID string) ([]model.ChatSession, error)
}

// Tx is the write side, valid only inside Store.Atomic.  Lock* methods take
// row locks held until the transaction ends.
type Tx interface {
	LockBooking(ctx context.Context, id string) (*model.Booking, error)
	LockBookingByToken(ctx context.Context, token string) (*model.Booking, error)
	LockPaymentByBooking(ctx context.Context, bookingID string) (*model.Payment, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	// CompareAndSetBookingStatus moves the booking only if it is still in
	// from, and reports whether it did.
	CompareAndSetBookingStatus(ctx context.Context, id string, from, to model.BookingStatus, at time.Time) (bool, error)
	// SetBookingToken writes the deal token only if none is set yet.
	SetBookingToken(ctx context.Context, id, token string, at time.Time) (bool, error)

	CreatePayment(ctx context.Context, p *model.Payment) error
	UpdatePayment(ctx context.Context, p *model.Payment) error

	AppendMessage(ctx context.Context, m *model.Message) error
	// MarkRead flips unread messages from sender and returns how many.
	MarkRead(ctx context.Context, conversationID string, sender model.SenderRole) (int, error)

	CreateSession(ctx context.Context, s *model.ChatSession) error
}

// Store combines reads with atomic write units.  fn's changes are applied
// all together or not at all.
type Store interface {
	Reader
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// HallDirectory is the live view of the hall assignment registry.
type HallDirectory interface {
	Hall(ctx context.Context, id string) (*model.Hall, error)
	HallIDsOwnedBy(ctx context.Context, ownerID string) ([]string, error)
	HallIDsManagedBy(ctx context.Context, managerID string) ([]string, error)
}

// UserDirectory resolves accounts for login.
type UserDirectory interface {
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
}

// UserRegistry adds account creation for sign-up and the bootstrap admin.
// CreateUser returns ErrEmailExists when the email is taken.
type UserRegistry interface {
	UserDirectory
	CreateUser(ctx context.Context, u *model.User) error
}
