package service

import (
	"context"
	"errors"
	"strings"

	"github.com/goccy/go-json"

	"github.com/iliyamo/venue-booking/internal/authz"
	"github.com/iliyamo/venue-booking/internal/lock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/repository"
)

// ConversationService guards the conversation store.  Booking chats pair
// the booking party (client) with hall staff (owner); session chats pair a
// user with an agency.
type ConversationService struct {
	*core
}

// PostInput is a message written by a participant.  System messages are
// produced by the services themselves and cannot be posted.
type PostInput struct {
	Content        string
	MessageType    model.MessageType
	FormData       json.RawMessage
	PaymentDetails *model.PaymentDetails
}

func (in *PostInput) normalize() error {
	in.Content = strings.TrimSpace(in.Content)
	if in.MessageType == "" {
		in.MessageType = model.MessageText
	}
	if !in.MessageType.Valid() || in.MessageType == model.MessageSystem {
		return invalid("unsupported message_type")
	}
	switch in.MessageType {
	case model.MessageText:
		if in.Content == "" {
			return invalid("content is required")
		}
	case model.MessageFormRequest, model.MessageFormResponse:
		if len(in.FormData) == 0 || !json.Valid(in.FormData) {
			return invalid("form_data must be a JSON document")
		}
	case model.MessagePaymentRequest, model.MessagePaymentConfirmation:
		if in.PaymentDetails == nil {
			return invalid("payment_details is required")
		}
		if in.PaymentDetails.AmountPaid < 0 || in.PaymentDetails.TotalAmount < 0 {
			return invalid("payment amounts must not be negative")
		}
	}
	return nil
}

// PaymentSummary is the coarse payment view of a session chat.
type PaymentSummary struct {
	SessionID   string             `json:"session_id"`
	Status      model.CoarseStatus `json:"status"`
	AmountPaid  int64              `json:"amount_paid"`
	TotalAmount int64              `json:"total_amount"`
	MessageID   string             `json:"message_id,omitempty"`
}

// bookingSide resolves which side of the booking chat actor speaks for.
func (s *ConversationService) bookingSide(ctx context.Context, actor model.Principal, b *model.Booking) (model.SenderRole, *model.Hall, error) {
	if actor.Role.Staff() {
		h, err := s.hall(ctx, b.HallID)
		if err != nil {
			return "", nil, err
		}
		if authz.CanAct(actor, authz.ChatAsStaff, authz.ForBooking(b, h)) {
			return model.SenderOwner, h, nil
		}
		return "", nil, forbidden()
	}
	if authz.CanAct(actor, authz.ChatAsClient, authz.ForBooking(b, nil)) {
		return model.SenderClient, nil, nil
	}
	return "", nil, forbidden()
}

// BookingMessages lists a booking conversation oldest first.
func (s *ConversationService) BookingMessages(ctx context.Context, actor model.Principal, bookingID string) ([]model.Message, error) {
	b, err := s.resolveBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.bookingSide(ctx, actor, b); err != nil {
		return nil, err
	}
	return s.messages(ctx, b.ID)
}

func (s *ConversationService) messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs, err := s.Store.MessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, storeErr("messages", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// PostBookingMessage appends to a booking conversation on the actor's side.
func (s *ConversationService) PostBookingMessage(ctx context.Context, actor model.Principal, bookingID string, in PostInput) (*model.Message, error) {
	b, err := s.resolveBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	side, h, err := s.bookingSide(ctx, actor, b)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	// a booking is paid only when staff verify its proof
	if in.MessageType == model.MessagePaymentConfirmation {
		return nil, invalid("payment-confirmation is not accepted in booking chats")
	}

	msg := s.newMessage(b.ID, model.ConversationBooking, nil, side, actor, in)
	var ob outbox
	key := realtime.HallBookingChannel(b.HallID, b.ID)
	ob.add(key, realtime.EventMessage, msg)
	if side == model.SenderClient {
		if h == nil {
			if h, err = s.hall(ctx, b.HallID); err != nil {
				return nil, err
			}
		}
		ob.add(realtime.UserChannel(h.OwnerID), realtime.EventMessage, msg)
		for _, m := range h.Managers {
			ob.add(realtime.UserChannel(m.ManagerID), realtime.EventMessage, msg)
		}
	} else if b.UserID != nil {
		ob.add(realtime.UserChannel(*b.UserID), realtime.EventMessage, msg)
	}
	if err := s.appendMessage(ctx, lock.BookingKey(b.ID), msg, &ob); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkBookingRead marks the other side's messages read for actor.
func (s *ConversationService) MarkBookingRead(ctx context.Context, actor model.Principal, bookingID string) (int, error) {
	b, err := s.resolveBooking(ctx, actor, bookingID)
	if err != nil {
		return 0, err
	}
	side, _, err := s.bookingSide(ctx, actor, b)
	if err != nil {
		return 0, err
	}
	return s.markRead(ctx, b.ID, side)
}

// BookingUnread counts the other side's unread messages for actor.
func (s *ConversationService) BookingUnread(ctx context.Context, actor model.Principal, bookingID string) (int, error) {
	b, err := s.resolveBooking(ctx, actor, bookingID)
	if err != nil {
		return 0, err
	}
	side, _, err := s.bookingSide(ctx, actor, b)
	if err != nil {
		return 0, err
	}
	return s.unread(ctx, b.ID, side)
}

// BookingChatSummaries is the staff overview of booking conversations in
// the actor's halls.
func (s *ConversationService) BookingChatSummaries(ctx context.Context, actor model.Principal) ([]model.ConversationSummary, error) {
	f, err := s.staffFilter(ctx, actor)
	if err != nil {
		return nil, err
	}
	var ids []string
	if !f.AllHalls {
		bookings, err := s.Store.ListBookings(ctx, f)
		if err != nil {
			return nil, storeErr("bookings", err)
		}
		ids = make([]string, 0, len(bookings))
		for _, b := range bookings {
			ids = append(ids, b.ID)
		}
	}
	msgs, err := s.Store.BookingMessages(ctx, ids)
	if err != nil {
		return nil, storeErr("messages", err)
	}
	return SummarizeConversations(msgs, model.SenderOwner), nil
}

// OpenSession returns the chat session between the calling user and an
// agency, creating it on first use.
func (s *ConversationService) OpenSession(ctx context.Context, actor model.Principal, agencyID string) (*model.ChatSession, error) {
	if actor.Role != model.RoleUser || actor.ID == "" {
		return nil, forbidden()
	}
	agencyID = strings.TrimSpace(agencyID)
	if agencyID == "" {
		return nil, invalid("agency_id is required")
	}
	if agencyID == actor.ID {
		return nil, invalid("cannot open a session with yourself")
	}
	if s.Users != nil {
		u, err := s.Users.UserByID(ctx, agencyID)
		if err != nil {
			return nil, storeErr("agency", err)
		}
		if u.Role != model.RoleAgency {
			return nil, notFound("agency")
		}
	}
	if cs, err := s.Store.SessionByPair(ctx, actor.ID, agencyID); err == nil {
		return cs, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr("session", err)
	}

	cs := &model.ChatSession{ID: s.NewID(), UserID: actor.ID, AgencyID: agencyID, CreatedAt: s.Now()}
	err := s.Store.Atomic(ctx, func(tx repository.Tx) error { return tx.CreateSession(ctx, cs) })
	if errors.Is(err, repository.ErrDuplicate) {
		// lost the race to a concurrent open
		existing, err := s.Store.SessionByPair(ctx, actor.ID, agencyID)
		if err != nil {
			return nil, storeErr("session", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, storeErr("session", err)
	}
	return cs, nil
}

// Sessions lists the actor's sessions, newest first.
func (s *ConversationService) Sessions(ctx context.Context, actor model.Principal) ([]model.ChatSession, error) {
	if (actor.Role != model.RoleUser && actor.Role != model.RoleAgency) || actor.ID == "" {
		return nil, forbidden()
	}
	out, err := s.Store.SessionsByParticipant(ctx, actor.ID)
	if err != nil {
		return nil, storeErr("sessions", err)
	}
	if out == nil {
		out = []model.ChatSession{}
	}
	return out, nil
}

// session loads a session and resolves actor's side.  Admins may read any
// session; they get an empty side and cannot write.
func (s *ConversationService) session(ctx context.Context, actor model.Principal, sessionID string) (*model.ChatSession, model.SenderRole, error) {
	cs, err := s.Store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, "", storeErr("session", err)
	}
	if !authz.CanAct(actor, authz.ChatSession, authz.ForSession(cs)) {
		return nil, "", forbidden()
	}
	switch actor.ID {
	case cs.UserID:
		return cs, model.SenderUser, nil
	case cs.AgencyID:
		return cs, model.SenderAgency, nil
	}
	return cs, "", nil
}

func (s *ConversationService) SessionMessages(ctx context.Context, actor model.Principal, sessionID string) ([]model.Message, error) {
	cs, _, err := s.session(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	return s.messages(ctx, cs.ID)
}

func (s *ConversationService) PostSessionMessage(ctx context.Context, actor model.Principal, sessionID string, in PostInput) (*model.Message, error) {
	cs, side, err := s.session(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if side == "" {
		return nil, forbidden()
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	sid := cs.ID
	msg := s.newMessage(cs.ID, model.ConversationSession, &sid, side, actor, in)

	var ob outbox
	receiver := cs.AgencyID
	if side == model.SenderAgency {
		receiver = cs.UserID
	}
	ob.add(realtime.SessionChannel(cs.ID), realtime.EventMessage, msg)
	ob.add(realtime.UserChannel(receiver), realtime.EventMessage, msg)
	if msg.MessageType == model.MessagePaymentConfirmation {
		ob.add(realtime.SessionChannel(cs.ID), realtime.EventPaymentConfirmed,
			PaymentConfirmedEvent{SessionID: cs.ID, Details: msg.PaymentDetails})
	}
	if err := s.appendMessage(ctx, lock.SessionKey(cs.ID), msg, &ob); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ConversationService) MarkSessionRead(ctx context.Context, actor model.Principal, sessionID string) (int, error) {
	cs, side, err := s.session(ctx, actor, sessionID)
	if err != nil {
		return 0, err
	}
	if side == "" {
		return 0, forbidden()
	}
	return s.markRead(ctx, cs.ID, side)
}

func (s *ConversationService) SessionUnread(ctx context.Context, actor model.Principal, sessionID string) (int, error) {
	cs, side, err := s.session(ctx, actor, sessionID)
	if err != nil {
		return 0, err
	}
	if side == "" {
		return 0, forbidden()
	}
	return s.unread(ctx, cs.ID, side)
}

// SessionPaymentSummary derives the coarse payment status from the latest
// payment confirmation posted in the session.
func (s *ConversationService) SessionPaymentSummary(ctx context.Context, actor model.Principal, sessionID string) (*PaymentSummary, error) {
	cs, _, err := s.session(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages(ctx, cs.ID)
	if err != nil {
		return nil, err
	}
	out := &PaymentSummary{SessionID: cs.ID, Status: model.CoarsePending}
	if m := latestPaymentConfirmation(msgs); m != nil {
		out.AmountPaid = m.PaymentDetails.AmountPaid
		out.TotalAmount = m.PaymentDetails.TotalAmount
		out.MessageID = m.ID
		out.Status = model.CoarsePaymentStatus(out.AmountPaid, out.TotalAmount)
	}
	return out, nil
}

func (c *core) newMessage(conversationID string, kind model.ConversationKind, sessionID *string, side model.SenderRole, actor model.Principal, in PostInput) *model.Message {
	m := &model.Message{
		ID:             c.NewID(),
		ConversationID: conversationID,
		Kind:           kind,
		SessionID:      sessionID,
		Sender:         side,
		Content:        in.Content,
		MessageType:    in.MessageType,
		FormData:       in.FormData,
		PaymentDetails: in.PaymentDetails,
		CreatedAt:      c.Now(),
	}
	if actor.ID != "" {
		id := actor.ID
		m.SenderID = &id
	}
	return m
}

// appendMessage persists msg and publishes ob under the conversation lock,
// so subscribers see messages in storage order.
func (c *core) appendMessage(ctx context.Context, lockKey string, msg *model.Message, ob *outbox) error {
	release, err := c.acquire(ctx, lockKey)
	if err != nil {
		return err
	}
	defer release()
	// timestamp under the lock so creation order matches append order
	msg.CreatedAt = c.Now()
	if err := c.Store.Atomic(ctx, func(tx repository.Tx) error { return tx.AppendMessage(ctx, msg) }); err != nil {
		return storeErr("message", err)
	}
	c.flush(ctx, ob)
	return nil
}

func (c *core) markRead(ctx context.Context, conversationID string, reader model.SenderRole) (int, error) {
	other, ok := reader.Opposite()
	if !ok {
		return 0, invalid("reader has no opposite party")
	}
	var n int
	err := c.Store.Atomic(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.MarkRead(ctx, conversationID, other)
		return err
	})
	if err != nil {
		return 0, storeErr("messages", err)
	}
	return n, nil
}

func (c *core) unread(ctx context.Context, conversationID string, viewer model.SenderRole) (int, error) {
	other, ok := viewer.Opposite()
	if !ok {
		return 0, invalid("viewer has no opposite party")
	}
	n, err := c.Store.CountUnread(ctx, conversationID, other)
	if err != nil {
		return 0, storeErr("messages", err)
	}
	return n, nil
}
