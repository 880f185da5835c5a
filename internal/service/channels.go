package service

import (
	"context"

	"github.com/iliyamo/venue-booking/internal/authz"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/realtime"
)

// AuthorizeSubscription decides whether p may listen on key.  It applies
// the same rules as reading the entity behind the channel, evaluated
// against the current hall assignment.
func (s *ConversationService) AuthorizeSubscription(ctx context.Context, p model.Principal, key realtime.ChannelKey) error {
	switch key.Kind {
	case realtime.KindUser:
		if p.ID == "" || p.ID != key.ID {
			return forbidden()
		}
		return nil
	case realtime.KindSession:
		if p.Role == model.RoleGuestToken {
			return forbidden()
		}
		_, _, err := s.session(ctx, p, key.ID)
		return err
	case realtime.KindHallBooking:
		b, err := s.resolveBooking(ctx, p, key.ID)
		if err != nil {
			return err
		}
		if b.HallID != key.HallID {
			return notFound("booking")
		}
		h, err := s.hall(ctx, b.HallID)
		if err != nil {
			return err
		}
		if !authz.CanAct(p, authz.ViewBooking, authz.ForBooking(b, h)) {
			return forbidden()
		}
		return nil
	}
	return invalid("unknown channel")
}
