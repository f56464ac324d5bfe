package config

import (
	"os"
	"time"
)

const (
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	apiURLVar      = "FITCOACH_API_URL"
	timeoutVar     = "FITCOACH_TIMEOUT"
	storeVar       = "FITCOACH_STORE"
	callbackVar    = "FITCOACH_CALLBACK_ADDR"
	configFileVar  = "FITCOACH_CONFIG"
	googleIDVar    = "GOOGLE_CLIENT_ID"
	googleSecret   = "GOOGLE_CLIENT_SECRET"
	defaultAPIURL  = "http://localhost:8000/api"
	defaultTimeout = 30 * time.Second
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "FitCoach")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) IsDev() bool {
	return e.GetEnv() == "DEV"
}

// Backend settings for the application REST API.
type Backend struct {
	file *FileConfig
}

var _ BackendConfig = Backend{}

// GetAPIBaseURL returns the common API prefix, e.g. "https://api.fitcoach.app/api"
func (b Backend) GetAPIBaseURL() string {
	return GetEnv(apiURLVar, fileOr(b.file.APIBaseURL, defaultAPIURL))
}

func (b Backend) GetRequestTimeout() time.Duration {
	if d, err := time.ParseDuration(os.Getenv(timeoutVar)); err == nil && d > 0 {
		return d
	}
	if b.file.RequestTimeout > 0 {
		return b.file.RequestTimeout
	}
	return defaultTimeout
}

// ConfigFilePath returns the optional YAML config file location.
func ConfigFilePath() string {
	return os.Getenv(configFileVar)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func fileOr(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
