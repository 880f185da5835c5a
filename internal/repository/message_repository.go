package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/iliyamo/venue-booking/internal/model"
)

const messageColumns = `id, conversation_id, kind, session_id, sender, sender_id, content,
	message_type, form_data, payment_details, is_read, created_at`

// MessageRepo is the append-only conversation log.  Rows are never updated
// except for is_read.  The seq column breaks created_at ties so reads keep
// insertion order.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

func scanMessage(s scanner) (*model.Message, error) {
	var (
		m         model.Message
		sessionID sql.NullString
		senderID  sql.NullString
		formData  []byte
		details   []byte
	)
	if err := s.Scan(&m.ID, &m.ConversationID, &m.Kind, &sessionID, &m.Sender, &senderID, &m.Content,
		&m.MessageType, &formData, &details, &m.IsRead, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.SessionID = stringPtr(sessionID)
	m.SenderID = stringPtr(senderID)
	if len(formData) > 0 {
		m.FormData = append(json.RawMessage(nil), formData...)
	}
	if len(details) > 0 {
		var pd model.PaymentDetails
		if err := json.Unmarshal(details, &pd); err != nil {
			return nil, fmt.Errorf("decode payment_details: %w", err)
		}
		m.PaymentDetails = &pd
	}
	return &m, nil
}

func (r *MessageRepo) list(ctx context.Context, q string, args ...any) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListByConversation returns the conversation oldest first.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	return r.list(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, seq ASC`,
		conversationID)
}

// ListBookingKind returns booking-kind messages outside any session chat.
// A nil ids slice means every booking conversation.
func (r *MessageRepo) ListBookingKind(ctx context.Context, conversationIDs []string) ([]model.Message, error) {
	if conversationIDs != nil && len(conversationIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + messageColumns + ` FROM messages WHERE kind = ? AND session_id IS NULL`
	args := []any{model.ConversationBooking}
	if conversationIDs != nil {
		q += ` AND conversation_id IN (` + placeholders(len(conversationIDs)) + `)`
		for _, id := range conversationIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY created_at ASC, seq ASC`
	return r.list(ctx, q, args...)
}

func (r *MessageRepo) CountUnread(ctx context.Context, conversationID string, sender model.SenderRole) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND sender = ? AND is_read = 0`,
		conversationID, sender).Scan(&n)
	return n, err
}

func (r *MessageRepo) AppendTx(ctx context.Context, tx *sql.Tx, m *model.Message) error {
	var details any
	if m.PaymentDetails != nil {
		var err error
		if details, err = jsonColumn(m.PaymentDetails); err != nil {
			return err
		}
	}
	var form any
	if len(m.FormData) > 0 {
		form = string(m.FormData)
	}
	const q = `INSERT INTO messages (` + messageColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err := tx.ExecContext(ctx, q,
		m.ID, m.ConversationID, m.Kind, nullString(m.SessionID), m.Sender, nullString(m.SenderID), m.Content,
		m.MessageType, form, details, m.IsRead, m.CreatedAt)
	return err
}

// MarkReadTx flips unread messages written by sender.
func (r *MessageRepo) MarkReadTx(ctx context.Context, tx *sql.Tx, conversationID string, sender model.SenderRole) (int, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND sender = ? AND is_read = 0`,
		conversationID, sender)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
