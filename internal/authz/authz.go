// Package authz holds the single authorization predicate used by every
// booking, payment and conversation operation.
package authz

import (
	"crypto/subtle"

	"github.com/iliyamo/venue-booking/internal/model"
)

// Capability is one way a non-admin principal can be related to a resource.
type Capability uint8

const (
	HallOwner Capability = 1 << iota
	HallManager
	OwningParty
	TokenHolder
)

// Operation names a guarded action and the capabilities that admit it.
type Operation struct {
	Name  string
	Allow Capability
}

var (
	CreateOffer        = Operation{"create-offer", HallOwner | HallManager}
	SetBookingStatus   = Operation{"set-booking-status", HallOwner | HallManager}
	ViewBooking        = Operation{"view-booking", HallOwner | HallManager | OwningParty | TokenHolder}
	SharePaymentNumber = Operation{"share-payment-number", HallManager}
	VerifyPayment      = Operation{"verify-payment", HallManager}
	UploadProof        = Operation{"upload-proof", OwningParty | TokenHolder}
	ConfirmOffer       = Operation{"confirm-offer", TokenHolder}
	ChatAsClient       = Operation{"chat-as-client", OwningParty | TokenHolder}
	ChatAsStaff        = Operation{"chat-as-staff", HallOwner | HallManager}
	ChatSession        = Operation{"chat-session", OwningParty}
)

// Resource is what an operation acts on.  Hall must be a fresh read of the
// assignment registry.  OwnerUserIDs lists the accounts that own the
// resource as a party (the booking user, or both session participants).
// Token is the deal token stored on the booking, if any.
type Resource struct {
	Hall         *model.Hall
	OwnerUserIDs []string
	Token        string
}

// CanAct reports whether p may perform op on res.
func CanAct(p model.Principal, op Operation, res Resource) bool {
	switch p.Role {
	case model.RoleAdmin:
		return true
	case model.RoleHallOwner:
		return op.Allow&HallOwner != 0 && res.Hall != nil && p.ID != "" && res.Hall.OwnerID == p.ID
	case model.RoleManager:
		return op.Allow&HallManager != 0 && res.Hall.HasManager(p.ID)
	case model.RoleUser, model.RoleAgency:
		if op.Allow&OwningParty == 0 || p.ID == "" {
			return false
		}
		for _, id := range res.OwnerUserIDs {
			if id == p.ID {
				return true
			}
		}
		return false
	case model.RoleGuestToken:
		return op.Allow&TokenHolder != 0 && TokenMatches(p.DealToken, res.Token)
	}
	return false
}

// TokenMatches compares two deal tokens in constant time.  Empty tokens
// never match.
func TokenMatches(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}

// ForBooking builds the resource view of a booking under hall h.
func ForBooking(b *model.Booking, h *model.Hall) Resource {
	res := Resource{Hall: h, Token: b.Token()}
	if b.UserID != nil {
		res.OwnerUserIDs = []string{*b.UserID}
	}
	return res
}

// ForSession builds the resource view of a chat session.
func ForSession(s *model.ChatSession) Resource {
	return Resource{OwnerUserIDs: []string{s.UserID, s.AgencyID}}
}
