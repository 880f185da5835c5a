package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/iliyamo/venue-booking/internal/model"
)

const bookingColumns = `id, hall_id, user_id, guest_name, guest_email, guest_phone, booking_date,
	menu_id, decoration_ids, guest_count, total_amount, notes, is_custom, custom_deal_token,
	status, origin, created_at, updated_at`

// BookingRepo reads and writes the bookings table.  Write methods take the
// caller's transaction; the booking row must be locked first when its
// status is about to change.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func scanBooking(s scanner) (*model.Booking, error) {
	var (
		b           model.Booking
		userID      sql.NullString
		menuID      sql.NullString
		decorations []byte
		notes       sql.NullString
		token       sql.NullString
	)
	err := s.Scan(&b.ID, &b.HallID, &userID, &b.Guest.Name, &b.Guest.Email, &b.Guest.Phone, &b.BookingDate,
		&menuID, &decorations, &b.Terms.GuestCount, &b.Terms.TotalAmount, &notes, &b.IsCustom, &token,
		&b.Status, &b.Origin, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.UserID = stringPtr(userID)
	b.Terms.MenuID = stringPtr(menuID)
	b.Terms.Notes = notes.String
	b.CustomDealToken = stringPtr(token)
	if len(decorations) > 0 {
		if err := json.Unmarshal(decorations, &b.Terms.DecorationIDs); err != nil {
			return nil, fmt.Errorf("decode decoration_ids: %w", err)
		}
	}
	return &b, nil
}

func getBooking(ctx context.Context, q querier, where string, args ...any) (*model.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// GetByID returns the booking or ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return getBooking(ctx, r.db, `WHERE id = ?`, id)
}

// GetByToken resolves a deal token to its booking.
func (r *BookingRepo) GetByToken(ctx context.Context, token string) (*model.Booking, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return getBooking(ctx, r.db, `WHERE custom_deal_token = ?`, token)
}

// GetForUpdateTx reads the booking and locks its row.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Booking, error) {
	return getBooking(ctx, tx, `WHERE id = ? FOR UPDATE`, id)
}

func (r *BookingRepo) GetByTokenForUpdateTx(ctx context.Context, tx *sql.Tx, token string) (*model.Booking, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return getBooking(ctx, tx, `WHERE custom_deal_token = ? FOR UPDATE`, token)
}

// CreateTx inserts b.  ID and timestamps must already be set.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	decorations := b.Terms.DecorationIDs
	if decorations == nil {
		decorations = []string{}
	}
	dec, err := jsonColumn(decorations)
	if err != nil {
		return err
	}
	const q = `INSERT INTO bookings (` + bookingColumns + `)
	           VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err = tx.ExecContext(ctx, q,
		b.ID, b.HallID, nullString(b.UserID), b.Guest.Name, b.Guest.Email, b.Guest.Phone, b.BookingDate,
		nullString(b.Terms.MenuID), dec, b.Terms.GuestCount, b.Terms.TotalAmount, b.Terms.Notes, b.IsCustom,
		nullString(b.CustomDealToken), b.Status, b.Origin, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// CompareAndSetStatusTx moves id from -> to and reports whether a row
// changed.
func (r *BookingRepo) CompareAndSetStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to model.BookingStatus, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetTokenTx writes the deal token once.  A second call is a no-op that
// reports false.
func (r *BookingRepo) SetTokenTx(ctx context.Context, tx *sql.Tx, id, token string, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET custom_deal_token = ?, updated_at = ? WHERE id = ? AND custom_deal_token IS NULL`,
		token, at, id)
	if err != nil {
		if isDuplicate(err) {
			return false, ErrDuplicate
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns bookings matching f, newest first.
func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	if !f.AllHalls && len(f.HallIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []any
	if !f.AllHalls {
		q += ` AND hall_id IN (` + placeholders(len(f.HallIDs)) + `)`
		for _, id := range f.HallIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		q += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
