package config

import (
	"os"
	"path/filepath"
	"time"
)

type SessionConfig interface {
	GetStorePath() string
	GetExpiryHorizon() time.Duration
	GetResendCooldown() time.Duration
	GetCallbackAddr() string
}

type Session struct {
	file *FileConfig
}

var _ SessionConfig = Session{}

// GetStorePath returns the bbolt file holding the persisted session.
// Defaults to ~/.fitcoach/session.db
func (s Session) GetStorePath() string {
	if path := GetEnv(storeVar, s.file.StorePath); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".fitcoach", "session.db")
	}
	return filepath.Join(home, ".fitcoach", "session.db")
}

// GetExpiryHorizon is how close to exp a token must be before callers
// refresh ahead of state-changing requests.
func (s Session) GetExpiryHorizon() time.Duration {
	if s.file.ExpiryHorizon > 0 {
		return s.file.ExpiryHorizon
	}
	return 5 * time.Minute
}

func (s Session) GetResendCooldown() time.Duration {
	if s.file.ResendCooldown > 0 {
		return s.file.ResendCooldown
	}
	return 60 * time.Second
}

// GetCallbackAddr is the loopback address the CLI listens on for OAuth redirects.
func (s Session) GetCallbackAddr() string {
	return GetEnv(callbackVar, fileOr(s.file.CallbackAddr, "127.0.0.1:8765"))
}
