package utils // package utils provides helpers for token creation and hashing

import (
	"crypto/rand"  // secure random number generation
	"encoding/hex" // hex encoding of random tokens
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT together with its expiry.  Clients send it in
// the Authorization header (or the access_token query parameter of the
// websocket endpoint).
type AccessToken struct {
	Token string
	Exp   time.Time
}

var ErrEmptySecret = errors.New("empty signing secret")

// NewAccessToken builds and signs an HS256 JWT for a user.  The token
// carries the standard sub, exp and iat claims plus the user's role.
func NewAccessToken(secret, userID, role string, ttlMin int) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, ErrEmptySecret
	}
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// DealTokenBytes is the entropy of a custom deal token.  Encoded as hex the
// token is 64 characters long.
const DealTokenBytes = 32

// NewDealToken returns a fresh unguessable deal token.
func NewDealToken() (string, error) {
	return randomHex(DealTokenBytes)
}

// randomHex returns n bytes of cryptographically secure random data as a
// hex string.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
