package model

import "time"

// PaymentStatus is the lifecycle state of the single payment attached to a
// booking.
type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingPayment      PaymentStatus = "awaiting_payment"
	PaymentAwaitingVerification PaymentStatus = "awaiting_verification"
	PaymentProofUploaded        PaymentStatus = "proof_uploaded"
	PaymentVerified             PaymentStatus = "verified"
	PaymentRejected             PaymentStatus = "rejected"
)

// AwaitingDecision reports whether a proof exists and staff has not ruled
// on it yet.  proof_uploaded is kept for rows written by older clients.
func (s PaymentStatus) AwaitingDecision() bool {
	return s == PaymentAwaitingVerification || s == PaymentProofUploaded
}

// Payment mirrors a row of the payments table.
type Payment struct {
	ID              string        `json:"id"`
	BookingID       string        `json:"booking_id"`
	UserID          *string       `json:"user_id,omitempty"`
	PaymentNumber   string        `json:"payment_number,omitempty"`
	ProofImage      string        `json:"proof_image,omitempty"`
	Status          PaymentStatus `json:"status"`
	SharedByManager bool          `json:"shared_by_manager"`
	VerifiedBy      *string       `json:"verified_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CoarseStatus is the chat-side payment label.  It is always derived from
// amounts at read time and never stored.
type CoarseStatus string

const (
	CoarsePending   CoarseStatus = "pending"
	CoarsePartial   CoarseStatus = "partial"
	CoarseCompleted CoarseStatus = "completed"
)

// CoarsePaymentStatus derives the coarse label from the amount paid and the
// agreed total.  Without an agreed total a positive payment stays partial.
func CoarsePaymentStatus(amountPaid, totalAmount int64) CoarseStatus {
	switch {
	case amountPaid <= 0:
		return CoarsePending
	case totalAmount > 0 && amountPaid >= totalAmount:
		return CoarseCompleted
	default:
		return CoarsePartial
	}
}
