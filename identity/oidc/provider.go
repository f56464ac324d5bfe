// Package oidc implements identity.Provider against any OpenID Connect issuer
// using the authorization code flow with PKCE.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/gregjones/httpcache"
	"github.com/jrsteele09/fitcoach-session/identity"
	"github.com/jrsteele09/fitcoach-session/internal/config"
	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
	"github.com/jrsteele09/fitcoach-session/store"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	stateLength = 32
	flowTimeout = 15 * time.Minute
)

var _ identity.Provider = (*Provider)(nil)

type providerConfig struct {
	oidcProvider  *gooidc.Provider
	oauth2Config  *oauth2.Config
	verifier      *gooidc.IDTokenVerifier
	revocationURL string
}

// Provider federates with one or more named OIDC issuers. The federated
// session is persisted in the shared store so that it is purged together
// with the rest of the local session state.
type Provider struct {
	settings   map[string]config.ProviderSettings
	store      store.Store
	flows      FlowRepo
	httpClient *http.Client
	logger     zerolog.Logger
	nowTime    func() time.Time

	configs    map[string]providerConfig
	configLock sync.RWMutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the caching client used for discovery, JWKS,
// token exchange and revocation.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

func WithFlowRepo(repo FlowRepo) Option {
	return func(p *Provider) {
		p.flows = repo
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// New creates a Provider for the given named issuers.
func New(settings map[string]config.ProviderSettings, kv store.Store, options ...Option) (*Provider, error) {
	if kv == nil {
		return nil, errors.New("[oidc New] store is required")
	}
	for name, s := range settings {
		if s.Issuer == "" || s.ClientID == "" {
			return nil, fmt.Errorf("[oidc New] provider %q needs an issuer and client id", name)
		}
	}

	p := &Provider{
		settings: settings,
		store:    kv,
		flows:    NewInMemoryFlowRepo(),
		// Discovery documents and JWKS carry Cache-Control headers.
		httpClient: &http.Client{Transport: httpcache.NewMemoryCacheTransport(), Timeout: 30 * time.Second},
		logger:     zerolog.Nop(),
		nowTime:    time.Now,
		configs:    make(map[string]providerConfig),
	}

	for _, opt := range options {
		opt(p)
	}

	return p, nil
}

// AuthCodeURL records a new flow (state, nonce, PKCE verifier) and returns the
// issuer's authorization URL for it.
func (p *Provider) AuthCodeURL(ctx context.Context, provider string) (string, error) {
	cfg, err := p.configFor(ctx, provider)
	if err != nil {
		return "", err
	}

	state := generateRandomString(stateLength)
	nonce := generateRandomString(stateLength)
	verifier := oauth2.GenerateVerifier()

	if err := p.flows.Upsert(state, &FlowState{
		Provider:     provider,
		CodeVerifier: verifier,
		Nonce:        nonce,
		CreatedAt:    p.nowTime(),
	}); err != nil {
		return "", fmt.Errorf("[oidc AuthCodeURL] failed to store flow state: %w", err)
	}

	return cfg.oauth2Config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		gooidc.Nonce(nonce),
	), nil
}

// Exchange trades the authorization code for tokens, verifies the ID token
// and its nonce, and stores the resulting federated session.
func (p *Provider) Exchange(ctx context.Context, cb identity.Callback) error {
	if cb.Error != "" {
		return fmt.Errorf("[oidc Exchange] authorization failed: %s - %s", cb.Error, cb.ErrorDescription)
	}
	if cb.Code == "" || cb.State == "" {
		return fmt.Errorf("[oidc Exchange] missing code or state parameter: %w", apperrors.ErrInvalidRequest)
	}

	flow, err := p.flows.Get(cb.State)
	if err != nil || flow == nil {
		return apperrors.Wrapf(apperrors.ErrInvalidState, "[oidc Exchange]")
	}
	if err := p.flows.Delete(cb.State); err != nil {
		return fmt.Errorf("[oidc Exchange] failed to clear flow state: %w", err)
	}
	if p.nowTime().Sub(flow.CreatedAt) > flowTimeout {
		return apperrors.Wrapf(apperrors.ErrInvalidState, "[oidc Exchange] flow expired")
	}

	cfg, err := p.configFor(ctx, flow.Provider)
	if err != nil {
		return err
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	oauth2Token, err := cfg.oauth2Config.Exchange(ctx, cb.Code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		return fmt.Errorf("[oidc Exchange] token exchange failed: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return errors.New("[oidc Exchange] no id_token in token response")
	}

	idToken, err := cfg.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("[oidc Exchange] id token verification failed: %w", err)
	}

	var claims struct {
		Nonce   string `json:"nonce"`
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return fmt.Errorf("[oidc Exchange] failed to extract claims: %w", err)
	}

	if claims.Nonce != flow.Nonce {
		return errors.New("[oidc Exchange] invalid nonce")
	}

	session := &identity.FederatedSession{
		Provider:     flow.Provider,
		Subject:      claims.Sub,
		Email:        claims.Email,
		Name:         claims.Name,
		AvatarURL:    claims.Picture,
		AccessToken:  oauth2Token.AccessToken,
		RefreshToken: oauth2Token.RefreshToken,
		IDToken:      rawIDToken,
		Expiry:       oauth2Token.Expiry,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[oidc Exchange] encode session: %w", err)
	}
	if err := p.store.Put(store.KeyFederatedSession, string(data)); err != nil {
		return fmt.Errorf("[oidc Exchange] persist session: %w", err)
	}

	p.logger.Debug().Str("provider", flow.Provider).Str("sub", claims.Sub).Msg("federated session established")
	return nil
}

// Session returns the stored federated session. Expired or unreadable
// sessions are reported as absent.
func (p *Provider) Session(_ context.Context) (*identity.FederatedSession, error) {
	raw, err := p.store.Get(store.KeyFederatedSession)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[oidc Session] %w", err)
	}

	var session identity.FederatedSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		p.logger.Warn().Err(err).Msg("discarding unreadable federated session")
		_ = p.store.Delete(store.KeyFederatedSession)
		return nil, nil
	}

	if !session.Valid(p.nowTime()) {
		return nil, nil
	}
	return &session, nil
}

// SignOut revokes the provider tokens where the issuer advertises a
// revocation endpoint, then forgets the federated session. Revocation is
// best effort.
func (p *Provider) SignOut(ctx context.Context) error {
	raw, err := p.store.Get(store.KeyFederatedSession)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("[oidc SignOut] %w", err)
	}

	var session identity.FederatedSession
	if err := json.Unmarshal([]byte(raw), &session); err == nil && session.Provider != "" {
		p.revoke(ctx, &session)
	}

	if err := p.store.Delete(store.KeyFederatedSession); err != nil {
		return fmt.Errorf("[oidc SignOut] %w", err)
	}
	return nil
}

func (p *Provider) revoke(ctx context.Context, session *identity.FederatedSession) {
	cfg, err := p.configFor(ctx, session.Provider)
	if err != nil {
		p.logger.Err(err).Msg("SignOut: failed to get OIDC config for token revocation")
		return
	}
	if cfg.revocationURL == "" {
		return
	}

	revokeToken := func(token, tokenTypeHint string) {
		form := url.Values{}
		form.Set("token", token)
		form.Set("token_type_hint", tokenTypeHint)
		form.Set("client_id", cfg.oauth2Config.ClientID)
		if cfg.oauth2Config.ClientSecret != "" {
			form.Set("client_secret", cfg.oauth2Config.ClientSecret)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.revocationURL, strings.NewReader(form.Encode()))
		if err != nil {
			p.logger.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to build revocation request")
			return
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			p.logger.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to revoke token")
			return
		}
		resp.Body.Close()
	}

	if session.RefreshToken != "" {
		revokeToken(session.RefreshToken, "refresh_token")
	}
	if session.AccessToken != "" {
		revokeToken(session.AccessToken, "access_token")
	}
}

// configFor discovers the named issuer once and caches the result.
func (p *Provider) configFor(ctx context.Context, name string) (providerConfig, error) {
	p.configLock.RLock()
	cfg, exists := p.configs[name]
	p.configLock.RUnlock()
	if exists {
		return cfg, nil
	}

	settings, ok := p.settings[name]
	if !ok {
		return providerConfig{}, apperrors.Wrapf(apperrors.ErrUnknownProvider, "[oidc] %q", name)
	}

	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, p.httpClient), settings.Issuer)
	if err != nil {
		return providerConfig{}, fmt.Errorf("[oidc] failed to create OIDC provider %q: %w", name, err)
	}

	var discovery struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		p.logger.Debug().Err(err).Str("provider", name).Msg("no revocation endpoint in discovery document")
	}

	scopes := settings.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	cfg = providerConfig{
		oidcProvider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  settings.RedirectURL,
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&gooidc.Config{
			ClientID: settings.ClientID,
			Now:      p.nowTime,
		}),
		revocationURL: discovery.RevocationEndpoint,
	}

	p.configLock.Lock()
	p.configs[name] = cfg
	p.configLock.Unlock()

	return cfg, nil
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
