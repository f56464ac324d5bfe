package config

import "sort"

type ProviderConfig interface {
	GetProviders() map[string]ProviderSettings
	GetProviderNames() []string
}

// ProviderSettings configures one federated OIDC provider.
type ProviderSettings struct {
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

type Providers struct {
	file *FileConfig
}

var _ ProviderConfig = Providers{}

const googleIssuer = "https://accounts.google.com"

// GetProviders merges providers from the config file with Google credentials
// taken from the environment.
func (p Providers) GetProviders() map[string]ProviderSettings {
	providers := make(map[string]ProviderSettings, len(p.file.Providers)+1)
	for name, settings := range p.file.Providers {
		providers[name] = settings
	}

	if clientID := GetEnv(googleIDVar, ""); clientID != "" {
		google := providers["google"]
		google.ClientID = clientID
		google.ClientSecret = GetEnv(googleSecret, google.ClientSecret)
		if google.Issuer == "" {
			google.Issuer = googleIssuer
		}
		providers["google"] = google
	}

	for name, settings := range providers {
		if settings.RedirectURL == "" {
			settings.RedirectURL = "http://" + Session{file: p.file}.GetCallbackAddr() + "/auth/callback"
			providers[name] = settings
		}
	}
	return providers
}

func (p Providers) GetProviderNames() []string {
	providers := p.GetProviders()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
