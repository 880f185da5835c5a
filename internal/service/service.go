// Package service implements the booking, payment and conversation
// operations.  Every mutation follows the same shape: authorize against a
// fresh hall read, take the booking lock, apply the change in one store
// unit, publish after commit while still holding the lock, then send
// notifications once the lock is released.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/lock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/repository"
	"github.com/iliyamo/venue-booking/internal/utils"
)

// EventPublisher fans events out to realtime subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, key realtime.ChannelKey, ev realtime.Event)
}

// Notifier delivers an email on a best-effort basis.
type Notifier interface {
	Notify(ctx context.Context, e model.Email) error
}

// Deps are the collaborators shared by all services.  Store, Halls and
// Uploads are required.
type Deps struct {
	Store    repository.Store
	Halls    repository.HallDirectory
	Users    repository.UserDirectory
	Locks    lock.Locker
	Events   EventPublisher
	Notifier Notifier
	Uploads  ProofStore
	Log      *zap.Logger

	// PublicBaseURL prefixes the deal links sent to guests.
	PublicBaseURL string

	Now      func() time.Time
	NewToken func() (string, error)
	NewID    func() string
}

// Services bundles the three services over one set of collaborators, so
// they share the same lock space.
type Services struct {
	Bookings      *BookingService
	Payments      *PaymentService
	Conversations *ConversationService
}

func New(d Deps) *Services {
	c := newCore(d)
	return &Services{
		Bookings:      &BookingService{c},
		Payments:      &PaymentService{c},
		Conversations: &ConversationService{c},
	}
}

type core struct {
	Deps
}

func newCore(d Deps) *core {
	if d.Store == nil || d.Halls == nil || d.Uploads == nil {
		panic("service: nil store, hall directory or upload store")
	}
	if d.Locks == nil {
		d.Locks = lock.NewLocal()
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewToken == nil {
		d.NewToken = utils.NewDealToken
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &core{Deps: d}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, realtime.ChannelKey, realtime.Event) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Email) error { return nil }

// hall reads the assignment registry.  Never cached.
func (c *core) hall(ctx context.Context, id string) (*model.Hall, error) {
	h, err := c.Halls.Hall(ctx, id)
	if err != nil {
		return nil, storeErr("hall", err)
	}
	return h, nil
}

// acquire takes the named lock.  Release is idempotent, so callers defer
// it and may also release early to notify outside the lock.
func (c *core) acquire(ctx context.Context, key string) (func(), error) {
	unlock, err := c.Locks.Lock(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, upstream("lock", err)
	}
	return unlock, nil
}

// outbox collects events produced inside a store unit.  They are published
// only after the unit commits.
type outbox struct {
	items []outboxItem
}

type outboxItem struct {
	key realtime.ChannelKey
	ev  realtime.Event
}

func (o *outbox) add(key realtime.ChannelKey, kind realtime.EventKind, payload any) {
	o.items = append(o.items, outboxItem{key: key, ev: realtime.Event{Kind: kind, Payload: payload}})
}

func (c *core) flush(ctx context.Context, o *outbox) {
	for _, it := range o.items {
		c.Events.Publish(ctx, it.key, it.ev)
	}
	o.items = nil
}

// notify sends e and logs failures.  It never fails the caller.
func (c *core) notify(ctx context.Context, e model.Email) {
	if e.To == "" {
		return
	}
	if err := c.Notifier.Notify(context.WithoutCancel(ctx), e); err != nil {
		c.Log.Warn("notification failed", zap.String("to", e.To), zap.String("subject", e.Subject), zap.Error(err))
	}
}

// recipient picks the address of the booking party: the guest contact,
// or the registered user's account email.
func (c *core) recipient(ctx context.Context, b *model.Booking) string {
	if b.Guest.Email != "" {
		return b.Guest.Email
	}
	if b.UserID == nil || c.Users == nil {
		return ""
	}
	u, err := c.Users.UserByID(ctx, *b.UserID)
	if err != nil {
		c.Log.Debug("no recipient for booking", zap.String("booking", b.ID), zap.Error(err))
		return ""
	}
	return u.Email
}

func (c *core) dealLink(token string, suffix string) string {
	return c.PublicBaseURL + "/deals/" + token + suffix
}

// systemMessage builds a system entry for the booking conversation.
func (c *core) systemMessage(bookingID string, typ model.MessageType, content string) *model.Message {
	return &model.Message{
		ID:             c.NewID(),
		ConversationID: bookingID,
		Kind:           model.ConversationBooking,
		Sender:         model.SenderSystem,
		Content:        content,
		MessageType:    typ,
		CreatedAt:      c.Now(),
	}
}

// BookingEvent is the payload of booking-status-changed.
type BookingEvent struct {
	BookingID string              `json:"booking_id"`
	HallID    string              `json:"hall_id"`
	Status    model.BookingStatus `json:"status"`
	Previous  model.BookingStatus `json:"previous,omitempty"`
	Origin    model.BookingOrigin `json:"origin"`
}

// PaymentEvent is the payload of payment-status-changed.
type PaymentEvent struct {
	PaymentID string              `json:"payment_id"`
	BookingID string              `json:"booking_id"`
	Status    model.PaymentStatus `json:"status"`
}

// PaymentConfirmedEvent is the payload of payment-confirmed.
type PaymentConfirmedEvent struct {
	BookingID string                `json:"booking_id,omitempty"`
	PaymentID string                `json:"payment_id,omitempty"`
	SessionID string                `json:"session_id,omitempty"`
	Details   *model.PaymentDetails `json:"details,omitempty"`
}

func bookingEvent(b *model.Booking, prev model.BookingStatus) BookingEvent {
	return BookingEvent{BookingID: b.ID, HallID: b.HallID, Status: b.Status, Previous: prev, Origin: b.Origin}
}

func paymentEvent(p *model.Payment) PaymentEvent {
	return PaymentEvent{PaymentID: p.ID, BookingID: p.BookingID, Status: p.Status}
}
