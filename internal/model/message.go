package model

import (
	"time"

	"github.com/goccy/go-json"
)

// ConversationKind separates booking chats (conversation id = booking id)
// from matchmaking session chats (conversation id = session id).
type ConversationKind string

const (
	ConversationBooking ConversationKind = "booking"
	ConversationSession ConversationKind = "session"
)

// SenderRole tags the author side of a message.
type SenderRole string

const (
	SenderUser   SenderRole = "user"
	SenderAgency SenderRole = "agency"
	SenderClient SenderRole = "client"
	SenderOwner  SenderRole = "owner"
	SenderSystem SenderRole = "system"
)

// Opposite returns the party whose messages r reads.  System has no
// opposite.
func (r SenderRole) Opposite() (SenderRole, bool) {
	switch r {
	case SenderUser:
		return SenderAgency, true
	case SenderAgency:
		return SenderUser, true
	case SenderClient:
		return SenderOwner, true
	case SenderOwner:
		return SenderClient, true
	}
	return "", false
}

// MessageType selects how a message payload is interpreted.
type MessageType string

const (
	MessageText                MessageType = "text"
	MessageFormRequest         MessageType = "form-request"
	MessageFormResponse        MessageType = "form-response"
	MessagePaymentRequest      MessageType = "payment-request"
	MessagePaymentConfirmation MessageType = "payment-confirmation"
	MessageSystem              MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFormRequest, MessageFormResponse,
		MessagePaymentRequest, MessagePaymentConfirmation, MessageSystem:
		return true
	}
	return false
}

// PaymentDetails is the structured payload of payment-request and
// payment-confirmation messages.
type PaymentDetails struct {
	AmountPaid  int64  `json:"amount_paid"`
	TotalAmount int64  `json:"total_amount"`
	Method      string `json:"method,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// Message is an immutable conversation entry.  Only IsRead ever changes,
// and only from false to true.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Kind           ConversationKind `json:"kind"`
	SessionID      *string          `json:"session_id,omitempty"`
	Sender         SenderRole       `json:"sender"`
	SenderID       *string          `json:"sender_id,omitempty"`
	Content        string           `json:"content"`
	MessageType    MessageType      `json:"message_type"`
	FormData       json.RawMessage  `json:"form_data,omitempty"`
	PaymentDetails *PaymentDetails  `json:"payment_details,omitempty"`
	IsRead         bool             `json:"is_read"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ChatSession pairs one user with one agency.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AgencyID  string    `json:"agency_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSummary is one row of the staff chat overview.
type ConversationSummary struct {
	ConversationID string  `json:"conversation_id"`
	Last           Message `json:"last_message"`
	Unread         int     `json:"unread"`
}
