package realtime

import "time"

// EventKind names the domain event carried on a channel.
type EventKind string

const (
	EventMessage              EventKind = "message"
	EventBookingStatusChanged EventKind = "booking-status-changed"
	EventPaymentConfirmed     EventKind = "payment-confirmed"
	EventPaymentStatusChanged EventKind = "payment-status-changed"

	// control frames written only to the requesting connection
	EventSubscribed   EventKind = "subscribed"
	EventUnsubscribed EventKind = "unsubscribed"
	EventError        EventKind = "error"
)

// Event is the frame delivered to subscribers.
type Event struct {
	Kind    EventKind `json:"kind"`
	Channel string    `json:"channel"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}
