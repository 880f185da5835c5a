package model

import "time"

// Role is the coarse identity class carried in the access token.
type Role string

const (
	RoleGuestToken Role = "guest-token"
	RoleUser       Role = "user"
	RoleAgency     Role = "agency"
	RoleManager    Role = "manager"
	RoleHallOwner  Role = "hall-owner"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a role that can be issued to an account.
// guest-token is never stored on a user row.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgency, RoleManager, RoleHallOwner, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether r sits on the venue side of a booking chat.
func (r Role) Staff() bool {
	return r == RoleHallOwner || r == RoleManager || r == RoleAdmin
}

// User mirrors the users table.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the resolved caller of an operation.  Anonymous callers carry
// RoleGuestToken and the deal token they presented.
type Principal struct {
	ID        string
	Role      Role
	DealToken string
}

// GuestPrincipal builds the principal of an anonymous deal-token holder.
func GuestPrincipal(token string) Principal {
	return Principal{Role: RoleGuestToken, DealToken: token}
}
