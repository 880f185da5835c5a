package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/venue-booking/internal/model"
)

func testHall() *model.Hall {
	return &model.Hall{ID: "h1", OwnerID: "owner-1", Managers: []model.HallManager{{ManagerID: "mgr-1"}}}
}

func TestCanAct(t *testing.T) {
	uid := "user-1"
	tok := "abc123"
	b := &model.Booking{ID: "b1", HallID: "h1", UserID: &uid, CustomDealToken: &tok}
	res := ForBooking(b, testHall())

	cases := []struct {
		name string
		p    model.Principal
		op   Operation
		want bool
	}{
		{"admin always", model.Principal{ID: "a", Role: model.RoleAdmin}, VerifyPayment, true},
		{"admin without hall", model.Principal{ID: "a", Role: model.RoleAdmin}, ChatSession, true},
		{"owner of hall", model.Principal{ID: "owner-1", Role: model.RoleHallOwner}, SetBookingStatus, true},
		{"other owner", model.Principal{ID: "owner-2", Role: model.RoleHallOwner}, SetBookingStatus, false},
		{"owner cannot share number", model.Principal{ID: "owner-1", Role: model.RoleHallOwner}, SharePaymentNumber, false},
		{"assigned manager", model.Principal{ID: "mgr-1", Role: model.RoleManager}, SharePaymentNumber, true},
		{"unassigned manager", model.Principal{ID: "mgr-2", Role: model.RoleManager}, SharePaymentNumber, false},
		{"booking user uploads", model.Principal{ID: "user-1", Role: model.RoleUser}, UploadProof, true},
		{"other user uploads", model.Principal{ID: "user-2", Role: model.RoleUser}, UploadProof, false},
		{"user cannot set status", model.Principal{ID: "user-1", Role: model.RoleUser}, SetBookingStatus, false},
		{"token holder confirms", model.GuestPrincipal("abc123"), ConfirmOffer, true},
		{"wrong token", model.GuestPrincipal("abc124"), ConfirmOffer, false},
		{"token prefix", model.GuestPrincipal("abc"), ConfirmOffer, false},
		{"empty token", model.GuestPrincipal(""), ViewBooking, false},
		{"token cannot verify", model.GuestPrincipal("abc123"), VerifyPayment, false},
		{"unknown role", model.Principal{ID: "x", Role: "root"}, ViewBooking, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, CanAct(c.p, c.op, res))
		})
	}
}

func TestCanActWithoutHall(t *testing.T) {
	res := Resource{}
	assert.False(t, CanAct(model.Principal{ID: "owner-1", Role: model.RoleHallOwner}, CreateOffer, res))
	assert.False(t, CanAct(model.Principal{ID: "mgr-1", Role: model.RoleManager}, CreateOffer, res))
}

func TestTokenNotMintedDeniesGuest(t *testing.T) {
	b := &model.Booking{ID: "b1", HallID: "h1"}
	assert.False(t, CanAct(model.GuestPrincipal("anything"), ViewBooking, ForBooking(b, testHall())))
}

func TestForSession(t *testing.T) {
	res := ForSession(&model.ChatSession{ID: "s1", UserID: "u1", AgencyID: "ag1"})
	assert.True(t, CanAct(model.Principal{ID: "u1", Role: model.RoleUser}, ChatSession, res))
	assert.True(t, CanAct(model.Principal{ID: "ag1", Role: model.RoleAgency}, ChatSession, res))
	assert.False(t, CanAct(model.Principal{ID: "u2", Role: model.RoleUser}, ChatSession, res))
	assert.False(t, CanAct(model.Principal{ID: "m", Role: model.RoleManager}, ChatSession, res))
}
