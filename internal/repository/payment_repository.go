package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/venue-booking/internal/model"
)

const paymentColumns = `id, booking_id, user_id, payment_number, proof_image, status,
	shared_by_manager, verified_by, created_at, updated_at`

// PaymentRepo reads and writes the payments table.  booking_id carries a
// unique index, so a second insert for the same booking fails with
// ErrDuplicate.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

func scanPayment(s scanner) (*model.Payment, error) {
	var (
		p          model.Payment
		userID     sql.NullString
		number     sql.NullString
		proof      sql.NullString
		verifiedBy sql.NullString
	)
	if err := s.Scan(&p.ID, &p.BookingID, &userID, &number, &proof, &p.Status,
		&p.SharedByManager, &verifiedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UserID = stringPtr(userID)
	p.PaymentNumber = number.String
	p.ProofImage = proof.String
	p.VerifiedBy = stringPtr(verifiedBy)
	return &p, nil
}

func getPayment(ctx context.Context, q querier, where string, args ...any) (*model.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return getPayment(ctx, r.db, `WHERE id = ?`, id)
}

func (r *PaymentRepo) GetByBooking(ctx context.Context, bookingID string) (*model.Payment, error) {
	return getPayment(ctx, r.db, `WHERE booking_id = ?`, bookingID)
}

// GetByBookingForUpdateTx locks the payment row of a booking, if any.
func (r *PaymentRepo) GetByBookingForUpdateTx(ctx context.Context, tx *sql.Tx, bookingID string) (*model.Payment, error) {
	return getPayment(ctx, tx, `WHERE booking_id = ? FOR UPDATE`, bookingID)
}

func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (` + paymentColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err := tx.ExecContext(ctx, q,
		p.ID, p.BookingID, nullString(p.UserID), p.PaymentNumber, p.ProofImage, p.Status,
		p.SharedByManager, nullString(p.VerifiedBy), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateTx overwrites the mutable columns of p.
func (r *PaymentRepo) UpdateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payments SET payment_number = ?, proof_image = ?, status = ?, shared_by_manager = ?,
		        verified_by = ?, updated_at = ?
		 WHERE id = ?`,
		p.PaymentNumber, p.ProofImage, p.Status, p.SharedByManager, nullString(p.VerifiedBy), p.UpdatedAt, p.ID)
	return err
}
