package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
	"github.com/iliyamo/venue-booking/internal/repository/memory"
	"github.com/iliyamo/venue-booking/internal/service"
)

var (
	owner   = model.Principal{ID: "owner-1", Role: model.RoleHallOwner}
	manager = model.Principal{ID: "mgr-1", Role: model.RoleManager}
	outside = model.Principal{ID: "mgr-2", Role: model.RoleManager}
	admin   = model.Principal{ID: "admin-1", Role: model.RoleAdmin}
	client  = model.Principal{ID: "user-1", Role: model.RoleUser}
	other   = model.Principal{ID: "user-2", Role: model.RoleUser}
	agency  = model.Principal{ID: "agency-1", Role: model.RoleAgency}
)

const hallID = "hall-1"

type published struct {
	key realtime.ChannelKey
	ev  realtime.Event
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(_ context.Context, key realtime.ChannelKey, ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{key: key, ev: ev})
}

func (r *recorder) kinds(key realtime.ChannelKey) []realtime.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.EventKind
	for _, p := range r.events {
		if p.key == key {
			out = append(out, p.ev.Kind)
		}
	}
	return out
}

type mailbox struct {
	mu   sync.Mutex
	sent []model.Email
	err  error
}

func (m *mailbox) Notify(_ context.Context, e model.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return m.err
}

func (m *mailbox) to(addr string) []model.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Email
	for _, e := range m.sent {
		if e.To == addr {
			out = append(out, e)
		}
	}
	return out
}

type fakeProofs struct {
	err   error
	saved int
}

func (f *fakeProofs) Save(_ context.Context, _ string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.saved++
	return "proofs/receipt.png", nil
}

type fixture struct {
	st     *memory.Store
	svc    *service.Services
	events *recorder
	mail   *mailbox
	proofs *fakeProofs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.PutHall(model.Hall{
		ID:       hallID,
		OwnerID:  owner.ID,
		Name:     "Grand Hall",
		Managers: []model.HallManager{{ManagerID: manager.ID, Department: "sales"}},
	})
	for _, u := range []model.User{
		{ID: client.ID, Email: "client@example.com", Role: model.RoleUser, IsActive: true},
		{ID: other.ID, Email: "other@example.com", Role: model.RoleUser, IsActive: true},
		{ID: agency.ID, Email: "agency@example.com", Role: model.RoleAgency, IsActive: true},
	} {
		st.PutUser(u)
	}

	var (
		clockMu sync.Mutex
		clock   = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	)
	f := &fixture{st: st, events: &recorder{}, mail: &mailbox{}, proofs: &fakeProofs{}}
	f.svc = service.New(service.Deps{
		Store:         st,
		Halls:         st,
		Users:         st,
		Events:        f.events,
		Notifier:      f.mail,
		Uploads:       f.proofs,
		PublicBaseURL: "https://venue.test",
		Now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return f
}

var bookingDate = time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)

// offer creates a custom offer for g@x.com and returns it with its token.
func (f *fixture) offer(t *testing.T) (*model.Booking, string) {
	t.Helper()
	b, err := f.svc.Bookings.CreateOffer(context.Background(), owner, service.OfferInput{
		HallID:      hallID,
		Guest:       model.GuestContact{Name: "Guest", Email: "g@x.com"},
		BookingDate: bookingDate,
		Terms:       model.Terms{GuestCount: 120, TotalAmount: 500000},
	})
	require.NoError(t, err)
	require.NotEmpty(t, b.Token())
	return b, b.Token()
}

// request creates a pending self-service booking owned by client.
func (f *fixture) request(t *testing.T) *model.Booking {
	t.Helper()
	b, err := f.svc.Bookings.CreateSelfService(context.Background(), client, service.SelfServiceInput{
		HallID:      hallID,
		BookingDate: bookingDate,
		Terms:       model.Terms{GuestCount: 80, TotalAmount: 300000},
	})
	require.NoError(t, err)
	return b
}

func proof() service.ProofInput {
	return service.ProofInput{Name: "receipt.png", Body: strings.NewReader("png-bytes")}
}

var errBoom = errors.New("boom")
