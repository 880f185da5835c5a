package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/venue-booking/internal/model"
)

// SQLStore is the MySQL-backed Store.  It also serves as the HallDirectory
// and UserDirectory of the process.
type SQLStore struct {
	db       *sql.DB
	Bookings *BookingRepo
	Payments *PaymentRepo
	Messages *MessageRepo
	Sessions *SessionRepo
	Halls    *HallRepo
	Users    *UserRepo
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:       db,
		Bookings: NewBookingRepo(db),
		Payments: NewPaymentRepo(db),
		Messages: NewMessageRepo(db),
		Sessions: NewSessionRepo(db),
		Halls:    NewHallRepo(db),
		Users:    NewUserRepo(db),
	}
}

// Atomic runs fn inside one transaction.  The transaction commits only if
// fn returns nil; any other outcome rolls it back.
func (s *SQLStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *SQLStore) BookingByID(ctx context.Context, id string) (*model.Booking, error) {
	return s.Bookings.GetByID(ctx, id)
}

func (s *SQLStore) BookingByToken(ctx context.Context, token string) (*model.Booking, error) {
	return s.Bookings.GetByToken(ctx, token)
}

func (s *SQLStore) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	return s.Bookings.List(ctx, f)
}

func (s *SQLStore) PaymentByID(ctx context.Context, id string) (*model.Payment, error) {
	return s.Payments.GetByID(ctx, id)
}

func (s *SQLStore) PaymentByBooking(ctx context.Context, bookingID string) (*model.Payment, error) {
	return s.Payments.GetByBooking(ctx, bookingID)
}

func (s *SQLStore) MessagesByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.Messages.ListByConversation(ctx, conversationID)
}

func (s *SQLStore) CountUnread(ctx context.Context, conversationID string, sender model.SenderRole) (int, error) {
	return s.Messages.CountUnread(ctx, conversationID, sender)
}

func (s *SQLStore) BookingMessages(ctx context.Context, conversationIDs []string) ([]model.Message, error) {
	return s.Messages.ListBookingKind(ctx, conversationIDs)
}

func (s *SQLStore) SessionByID(ctx context.Context, id string) (*model.ChatSession, error) {
	return s.Sessions.GetByID(ctx, id)
}

func (s *SQLStore) SessionByPair(ctx context.Context, userID, agencyID string) (*model.ChatSession, error) {
	return s.Sessions.GetByPair(ctx, userID, agencyID)
}

func (s *SQLStore) SessionsByParticipant(ctx context.Context, participantID string) ([]model.ChatSession, error) {
	return s.Sessions.ListByParticipant(ctx, participantID)
}

func (s *SQLStore) Hall(ctx context.Context, id string) (*model.Hall, error) {
	return s.Halls.GetByID(ctx, id)
}

func (s *SQLStore) HallIDsOwnedBy(ctx context.Context, ownerID string) ([]string, error) {
	return s.Halls.IDsOwnedBy(ctx, ownerID)
}

func (s *SQLStore) HallIDsManagedBy(ctx context.Context, managerID string) ([]string, error) {
	return s.Halls.IDsManagedBy(ctx, managerID)
}

func (s *SQLStore) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.Users.GetByEmail(ctx, email)
}

func (s *SQLStore) UserByID(ctx context.Context, id string) (*model.User, error) {
	return s.Users.GetByID(ctx, id)
}

func (s *SQLStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.Users.Create(ctx, u)
}

type sqlTx struct {
	tx *sql.Tx
	s  *SQLStore
}

func (t *sqlTx) LockBooking(ctx context.Context, id string) (*model.Booking, error) {
	return t.s.Bookings.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) LockBookingByToken(ctx context.Context, token string) (*model.Booking, error) {
	return t.s.Bookings.GetByTokenForUpdateTx(ctx, t.tx, token)
}

func (t *sqlTx) LockPaymentByBooking(ctx context.Context, bookingID string) (*model.Payment, error) {
	return t.s.Payments.GetByBookingForUpdateTx(ctx, t.tx, bookingID)
}

func (t *sqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	return t.s.Bookings.CreateTx(ctx, t.tx, b)
}

func (t *sqlTx) CompareAndSetBookingStatus(ctx context.Context, id string, from, to model.BookingStatus, at time.Time) (bool, error) {
	return t.s.Bookings.CompareAndSetStatusTx(ctx, t.tx, id, from, to, at)
}

func (t *sqlTx) SetBookingToken(ctx context.Context, id, token string, at time.Time) (bool, error) {
	return t.s.Bookings.SetTokenTx(ctx, t.tx, id, token, at)
}

func (t *sqlTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	return t.s.Payments.CreateTx(ctx, t.tx, p)
}

func (t *sqlTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	return t.s.Payments.UpdateTx(ctx, t.tx, p)
}

func (t *sqlTx) AppendMessage(ctx context.Context, m *model.Message) error {
	return t.s.Messages.AppendTx(ctx, t.tx, m)
}

func (t *sqlTx) MarkRead(ctx context.Context, conversationID string, sender model.SenderRole) (int, error) {
	return t.s.Messages.MarkReadTx(ctx, t.tx, conversationID, sender)
}

func (t *sqlTx) CreateSession(ctx context.Context, s *model.ChatSession) error {
	return t.s.Sessions.CreateTx(ctx, t.tx, s)
}

var (
	_ Store         = (*SQLStore)(nil)
	_ HallDirectory = (*SQLStore)(nil)
	_ UserRegistry  = (*SQLStore)(nil)
)
