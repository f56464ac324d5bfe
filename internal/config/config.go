package config

import "time"

type Config interface {
	EnvConfig
	BackendConfig
	SessionConfig
	ProviderConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	IsDev() bool
}

type BackendConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Backend
	Session
	Providers
}

// New returns a Config sourced from environment variables only.
func New() Config {
	return newMainConfig(nil)
}

func newMainConfig(file *FileConfig) mainConfig {
	if file == nil {
		file = &FileConfig{}
	}
	return mainConfig{
		Backend:   Backend{file: file},
		Session:   Session{file: file},
		Providers: Providers{file: file},
	}
}
