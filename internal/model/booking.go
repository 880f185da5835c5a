package model

import "time"

// BookingStatus is the lifecycle state of a booking.  The only legal
// movements are custom-offer -> pending -> approved|rejected; approved and
// rejected are terminal.
type BookingStatus string

const (
	BookingCustomOffer BookingStatus = "custom-offer"
	BookingPending     BookingStatus = "pending"
	BookingApproved    BookingStatus = "approved"
	BookingRejected    BookingStatus = "rejected"
)

// ListedBookingStatuses are the statuses visible in staff listings.  Custom
// offers are reachable only through their deal token.
var ListedBookingStatuses = []BookingStatus{BookingPending, BookingApproved, BookingRejected}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingCustomOffer, BookingPending, BookingApproved, BookingRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool {
	return s == BookingApproved || s == BookingRejected
}

// CanTransition reports whether the state machine admits s -> to.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	switch s {
	case BookingCustomOffer:
		return to == BookingPending
	case BookingPending:
		return to == BookingApproved || to == BookingRejected
	}
	return false
}

// BookingOrigin records which path created a booking.  Both paths end up
// in pending, so the tag is the only way to tell them apart later.
type BookingOrigin string

const (
	OriginOwnerOffer  BookingOrigin = "owner-offer"
	OriginSelfService BookingOrigin = "self-service"
)

// GuestContact identifies the party of a booking that has no user account.
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Terms are the negotiated booking details.  Menu and decoration ids point
// into the external catalog and are opaque here.
type Terms struct {
	MenuID        *string  `json:"menu_id,omitempty"`
	DecorationIDs []string `json:"decoration_ids"`
	GuestCount    int      `json:"guest_count"`
	TotalAmount   int64    `json:"total_amount"` // minor currency units
	Notes         string   `json:"notes,omitempty"`
}

// Booking mirrors a row of the bookings table.
//
// CustomDealToken is the credential for anonymous access.  It is written
// once and never serialized in API responses.
type Booking struct {
	ID              string        `json:"id"`
	HallID          string        `json:"hall_id"`
	UserID          *string       `json:"user_id,omitempty"`
	Guest           GuestContact  `json:"guest"`
	BookingDate     time.Time     `json:"booking_date"`
	Terms           Terms         `json:"terms"`
	IsCustom        bool          `json:"is_custom"`
	CustomDealToken *string       `json:"-"`
	Status          BookingStatus `json:"status"`
	Origin          BookingOrigin `json:"origin"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// OwnedBy reports whether userID is the booking's registered user.
func (b *Booking) OwnedBy(userID string) bool {
	return b.UserID != nil && userID != "" && *b.UserID == userID
}

// Token returns the deal token or "" when none has been minted.
func (b *Booking) Token() string {
	if b.CustomDealToken == nil {
		return ""
	}
	return *b.CustomDealToken
}
