// Package memory is an in-process implementation of the repository
// contracts.  It backs tests and single-node runs without MySQL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
)

type state struct {
	bookings map[string]model.Booking
	payments map[string]model.Payment
	messages []model.Message
	sessions map[string]model.ChatSession
}

func (s *state) clone() *state {
	c := &state{
		bookings: make(map[string]model.Booking, len(s.bookings)),
		payments: make(map[string]model.Payment, len(s.payments)),
		messages: append([]model.Message(nil), s.messages...),
		sessions: make(map[string]model.ChatSession, len(s.sessions)),
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	return c
}

// Store keeps all rows in maps.  Atomic works on a copy of the state and
// swaps it in on success, so a failed unit leaves nothing behind.  Units
// are serialised; fn must not call back into the Store's read methods.
type Store struct {
	mu sync.RWMutex
	st *state

	dirMu sync.RWMutex
	halls map[string]model.Hall
	users map[string]model.User
}

func New() *Store {
	return &Store{
		st: &state{
			bookings: map[string]model.Booking{},
			payments: map[string]model.Payment{},
			sessions: map[string]model.ChatSession{},
		},
		halls: map[string]model.Hall{},
		users: map[string]model.User{},
	}
}

// PutHall inserts or replaces a hall assignment.
func (s *Store) PutHall(h model.Hall) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	h.Managers = append([]model.HallManager(nil), h.Managers...)
	s.halls[h.ID] = h
}

// PutUser inserts or replaces an account.
func (s *Store) PutUser(u model.User) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	s.users[u.ID] = u
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) BookingByID(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s *Store) BookingByToken(_ context.Context, token string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.st.bookingByToken(token); ok {
		return &b, nil
	}
	return nil, repository.ErrNotFound
}

func (st *state) bookingByToken(token string) (model.Booking, bool) {
	if token == "" {
		return model.Booking{}, false
	}
	for _, b := range st.bookings {
		if b.CustomDealToken != nil && *b.CustomDealToken == token {
			return b, true
		}
	}
	return model.Booking{}, false
}

func (s *Store) ListBookings(_ context.Context, f repository.BookingFilter) ([]model.Booking, error) {
	if !f.AllHalls && len(f.HallIDs) == 0 {
		return nil, nil
	}
	halls := make(map[string]bool, len(f.HallIDs))
	for _, id := range f.HallIDs {
		halls[id] = true
	}
	statuses := make(map[model.BookingStatus]bool, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses[st] = true
	}

	s.mu.RLock()
	var out []model.Booking
	for _, b := range s.st.bookings {
		if !f.AllHalls && !halls[b.HallID] {
			continue
		}
		if len(statuses) > 0 && !statuses[b.Status] {
			continue
		}
		out = append(out, b)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) PaymentByID(_ context.Context, id string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) PaymentByBooking(_ context.Context, bookingID string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.st.paymentByBooking(bookingID); ok {
		return &p, nil
	}
	return nil, repository.ErrNotFound
}

func (st *state) paymentByBooking(bookingID string) (model.Payment, bool) {
	for _, p := range st.payments {
		if p.BookingID == bookingID {
			return p, true
		}
	}
	return model.Payment{}, false
}

// Messages are stored in append order, which equals creation order.
func (s *Store) MessagesByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.st.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) CountUnread(_ context.Context, conversationID string, sender model.SenderRole) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.st.messages {
		if m.ConversationID == conversationID && m.Sender == sender && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) BookingMessages(_ context.Context, conversationIDs []string) ([]model.Message, error) {
	if conversationIDs != nil && len(conversationIDs) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.st.messages {
		if m.Kind != model.ConversationBooking || m.SessionID != nil {
			continue
		}
		if conversationIDs != nil && !want[m.ConversationID] {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) SessionByID(_ context.Context, id string) (*model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.st.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &cs, nil
}

func (s *Store) SessionByPair(_ context.Context, userID, agencyID string) (*model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cs, ok := s.st.sessionByPair(userID, agencyID); ok {
		return &cs, nil
	}
	return nil, repository.ErrNotFound
}

func (st *state) sessionByPair(userID, agencyID string) (model.ChatSession, bool) {
	for _, cs := range st.sessions {
		if cs.UserID == userID && cs.AgencyID == agencyID {
			return cs, true
		}
	}
	return model.ChatSession{}, false
}

func (s *Store) SessionsByParticipant(_ context.Context, participantID string) ([]model.ChatSession, error) {
	s.mu.RLock()
	var out []model.ChatSession
	for _, cs := range s.st.sessions {
		if cs.UserID == participantID || cs.AgencyID == participantID {
			out = append(out, cs)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) Hall(_ context.Context, id string) (*model.Hall, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	h, ok := s.halls[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	h.Managers = append([]model.HallManager(nil), h.Managers...)
	return &h, nil
}

func (s *Store) HallIDsOwnedBy(_ context.Context, ownerID string) ([]string, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	out := []string{}
	for _, h := range s.halls {
		if h.OwnerID == ownerID {
			out = append(out, h.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) HallIDsManagedBy(_ context.Context, managerID string) ([]string, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	out := []string{}
	for _, h := range s.halls {
		if h.HasManager(managerID) {
			out = append(out, h.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (*model.User, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = *u
	return nil
}

// tx mutates a private copy of the state.  Row locks are implicit because
// units never overlap.
type tx struct {
	st *state
}

func (t *tx) LockBooking(_ context.Context, id string) (*model.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (t *tx) LockBookingByToken(_ context.Context, token string) (*model.Booking, error) {
	if b, ok := t.st.bookingByToken(token); ok {
		return &b, nil
	}
	return nil, repository.ErrNotFound
}

func (t *tx) LockPaymentByBooking(_ context.Context, bookingID string) (*model.Payment, error) {
	if p, ok := t.st.paymentByBooking(bookingID); ok {
		return &p, nil
	}
	return nil, repository.ErrNotFound
}

func (t *tx) CreateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.st.bookings[b.ID]; ok {
		return repository.ErrDuplicate
	}
	if b.CustomDealToken != nil {
		if _, ok := t.st.bookingByToken(*b.CustomDealToken); ok {
			return repository.ErrDuplicate
		}
	}
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) CompareAndSetBookingStatus(_ context.Context, id string, from, to model.BookingStatus, at time.Time) (bool, error) {
	b, ok := t.st.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = at
	t.st.bookings[id] = b
	return true, nil
}

func (t *tx) SetBookingToken(_ context.Context, id, token string, at time.Time) (bool, error) {
	b, ok := t.st.bookings[id]
	if !ok || b.CustomDealToken != nil {
		return false, nil
	}
	if _, taken := t.st.bookingByToken(token); taken {
		return false, repository.ErrDuplicate
	}
	b.CustomDealToken = &token
	b.UpdatedAt = at
	t.st.bookings[id] = b
	return true, nil
}

func (t *tx) CreatePayment(_ context.Context, p *model.Payment) error {
	if _, ok := t.st.payments[p.ID]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := t.st.paymentByBooking(p.BookingID); ok {
		return repository.ErrDuplicate
	}
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) UpdatePayment(_ context.Context, p *model.Payment) error {
	if _, ok := t.st.payments[p.ID]; !ok {
		return repository.ErrNotFound
	}
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) AppendMessage(_ context.Context, m *model.Message) error {
	t.st.messages = append(t.st.messages, *m)
	return nil
}

func (t *tx) MarkRead(_ context.Context, conversationID string, sender model.SenderRole) (int, error) {
	n := 0
	for i := range t.st.messages {
		m := &t.st.messages[i]
		if m.ConversationID == conversationID && m.Sender == sender && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateSession(_ context.Context, cs *model.ChatSession) error {
	if _, ok := t.st.sessions[cs.ID]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := t.st.sessionByPair(cs.UserID, cs.AgencyID); ok {
		return repository.ErrDuplicate
	}
	t.st.sessions[cs.ID] = *cs
	return nil
}

var (
	_ repository.Store         = (*Store)(nil)
	_ repository.HallDirectory = (*Store)(nil)
	_ repository.UserRegistry  = (*Store)(nil)
)
