// Package token holds pure, I/O free checks on bearer tokens: whether they
// have the compact three-segment shape with the claims the session needs, and
// how close they are to expiry. Signatures are never verified here; the
// backend remains the authority on whether a token is honored.
package token

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed     = errors.New("token must have three dot-separated segments")
	ErrUndecodable   = errors.New("token payload is not an encoded JSON object")
	ErrMissingClaims = errors.New("token payload is missing sub or email")
	ErrMissingExpiry = errors.New("token payload has no exp claim")
)

// Claims are the payload fields the session relies on.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time // zero when the token carries no exp
}

// HasExpiry reports whether the payload carried an exp claim.
func (c *Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Decode splits raw and decodes its payload segment without checking which
// claims are present.
func Decode(raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[1] == "" {
		return nil, ErrMalformed
	}

	payload, err := jwtlib.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, ErrUndecodable
	}

	mapClaims := jwtlib.MapClaims{}
	if err := json.Unmarshal(payload, &mapClaims); err != nil {
		return nil, ErrUndecodable
	}

	claims := &Claims{}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Email, _ = mapClaims["email"].(string)

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

// ValidateStructure accepts raw only if it has three segments and a decodable
// payload carrying non-empty sub and email claims. Tokens failing this check
// must never be presented to the backend.
func ValidateStructure(raw string) (*Claims, error) {
	claims, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}
