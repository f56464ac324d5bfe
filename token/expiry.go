package token

import "time"

// DefaultExpiryHorizon is the window before exp in which callers should
// refresh ahead of state-changing requests.
const DefaultExpiryHorizon = 5 * time.Minute

type ExpiryStatus int

const (
	StatusInvalid ExpiryStatus = iota
	StatusExpired
	StatusExpiringSoon
	StatusValid
)

func (s ExpiryStatus) String() string {
	switch s {
	case StatusExpired:
		return "expired"
	case StatusExpiringSoon:
		return "expiring_soon"
	case StatusValid:
		return "valid"
	default:
		return "invalid"
	}
}

// Usable reports whether a request may still be sent with the token.
// ExpiringSoon is a soft warning only.
func (s ExpiryStatus) Usable() bool {
	return s == StatusValid || s == StatusExpiringSoon
}

// CheckExpiry classifies raw against now. A token is only structurally valid
// for this check when it has three segments and a payload with an exp claim
// in epoch seconds.
func CheckExpiry(raw string, now time.Time, horizon time.Duration) (ExpiryStatus, error) {
	claims, err := Decode(raw)
	if err != nil {
		return StatusInvalid, err
	}
	if !claims.HasExpiry() {
		return StatusInvalid, ErrMissingExpiry
	}

	switch {
	case !now.Before(claims.ExpiresAt):
		return StatusExpired, nil
	case claims.ExpiresAt.Sub(now) <= horizon:
		return StatusExpiringSoon, nil
	default:
		return StatusValid, nil
	}
}
