package backend

import "encoding/json"

// Profile is the profile block of a password login response.
type Profile struct {
	FullName            string `json:"full_name,omitempty"`
	OnboardingCompleted *bool  `json:"onboarding_completed,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	AccessToken string   `json:"access_token"`
	Profile     *Profile `json:"profile,omitempty"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// LinkRequest forwards federated identity claims to POST /auth/google-oauth.
type LinkRequest struct {
	GoogleID  string `json:"google_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// LinkResponse carries the application-level token minted for a federated identity.
type LinkResponse struct {
	UserID              string `json:"user_id"`
	Email               string `json:"email"`
	Username            string `json:"username"`
	FullName            string `json:"full_name"`
	AccessToken         string `json:"access_token"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
	CreatedAt           string `json:"created_at,omitempty"`
	UpdatedAt           string `json:"updated_at,omitempty"`
}

// MeResponse is returned by GET /auth/me.
type MeResponse struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Username            string `json:"username"`
	FullName            string `json:"full_name"`
	AvatarURL           string `json:"avatar_url,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

type VerifySessionResponse struct {
	Valid bool `json:"valid"`
}

type OnboardingStatusResponse struct {
	OnboardingCompleted bool `json:"onboarding_completed"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

type ConfirmResetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"token"`
	NewPassword string `json:"new_password"`
}

// envelope is the {success, data, error, message} wrapper most endpoints use.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
}

func (e envelope) reason() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	default:
		return e.Detail
	}
}
