package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/venue-booking/internal/model"
)

// SessionRepo stores matchmaking chat sessions, unique per (user, agency).
type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) get(ctx context.Context, where string, args ...any) (*model.ChatSession, error) {
	var s model.ChatSession
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, agency_id, created_at FROM chat_sessions `+where, args...).
		Scan(&s.ID, &s.UserID, &s.AgencyID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	return r.get(ctx, `WHERE id = ?`, id)
}

func (r *SessionRepo) GetByPair(ctx context.Context, userID, agencyID string) (*model.ChatSession, error) {
	return r.get(ctx, `WHERE user_id = ? AND agency_id = ?`, userID, agencyID)
}

// ListByParticipant returns sessions where id is either side, newest first.
func (r *SessionRepo) ListByParticipant(ctx context.Context, id string) ([]model.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, agency_id, created_at FROM chat_sessions
		 WHERE user_id = ? OR agency_id = ? ORDER BY created_at DESC, id DESC`, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ChatSession
	for rows.Next() {
		var s model.ChatSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.AgencyID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.ChatSession) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, agency_id, created_at) VALUES (?,?,?,?)`,
		s.ID, s.UserID, s.AgencyID, s.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
