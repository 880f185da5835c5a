// Package realtime routes domain events to WebSocket subscribers.
//
// Channels are addressed by typed keys so that a session id can never be
// mistaken for a hall/booking pair.  Every connection owns one buffered
// outbound queue drained by a single writer, and publishes for a channel
// are serialised under the router lock, so all subscribers of a channel
// observe the same order.
package realtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ChannelKind discriminates channel keys.
type ChannelKind uint8

const (
	KindSession ChannelKind = iota + 1
	KindHallBooking
	KindUser
)

func (k ChannelKind) prefix() string {
	switch k {
	case KindSession:
		return "session"
	case KindHallBooking:
		return "hall-booking"
	case KindUser:
		return "user"
	}
	return ""
}

// ChannelKey identifies a subscription channel.  It is comparable and used
// directly as a map key.
type ChannelKey struct {
	Kind   ChannelKind
	HallID string // only for KindHallBooking
	ID     string // session, booking or user id
}

var ErrBadChannel = errors.New("invalid channel key")

func SessionChannel(sessionID string) ChannelKey {
	return ChannelKey{Kind: KindSession, ID: sessionID}
}

func HallBookingChannel(hallID, bookingID string) ChannelKey {
	return ChannelKey{Kind: KindHallBooking, HallID: hallID, ID: bookingID}
}

func UserChannel(userID string) ChannelKey {
	return ChannelKey{Kind: KindUser, ID: userID}
}

// String renders the wire form: session:<id>, hall-booking:<hall>:<booking>
// or user:<id>.
func (k ChannelKey) String() string {
	if k.Kind == KindHallBooking {
		return k.Kind.prefix() + ":" + k.HallID + ":" + k.ID
	}
	return k.Kind.prefix() + ":" + k.ID
}

// Valid reports whether every component is present and free of separators.
func (k ChannelKey) Valid() bool {
	ok := func(s string) bool { return s != "" && !strings.Contains(s, ":") }
	switch k.Kind {
	case KindSession, KindUser:
		return ok(k.ID) && k.HallID == ""
	case KindHallBooking:
		return ok(k.ID) && ok(k.HallID)
	}
	return false
}

// ParseChannelKey is the inverse of String.
func ParseChannelKey(s string) (ChannelKey, error) {
	prefix, rest, found := strings.Cut(s, ":")
	if !found {
		return ChannelKey{}, fmt.Errorf("%w: %q", ErrBadChannel, s)
	}
	var k ChannelKey
	switch prefix {
	case "session":
		k = SessionChannel(rest)
	case "user":
		k = UserChannel(rest)
	case "hall-booking":
		hall, booking, _ := strings.Cut(rest, ":")
		k = HallBookingChannel(hall, booking)
	default:
		return ChannelKey{}, fmt.Errorf("%w: %q", ErrBadChannel, s)
	}
	if !k.Valid() {
		return ChannelKey{}, fmt.Errorf("%w: %q", ErrBadChannel, s)
	}
	return k, nil
}

// FromLegacyRoom translates the room names used by older clients.  Those
// clients joined a bare session id, or the hall id and booking id glued
// together without a separator.  Names already in wire form pass through.
func FromLegacyRoom(room string) (ChannelKey, error) {
	if k, err := ParseChannelKey(room); err == nil {
		return k, nil
	}
	if _, err := uuid.Parse(room); err == nil && len(room) == 36 {
		return SessionChannel(room), nil
	}
	if len(room) == 72 {
		hall, booking := room[:36], room[36:]
		if _, err := uuid.Parse(hall); err == nil {
			if _, err := uuid.Parse(booking); err == nil {
				return HallBookingChannel(hall, booking), nil
			}
		}
	}
	return ChannelKey{}, fmt.Errorf("%w: legacy room %q", ErrBadChannel, room)
}
