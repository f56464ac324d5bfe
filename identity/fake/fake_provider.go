package fakeprovider

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/fitcoach-session/identity"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory identity.Provider for tests. Exchange installs
// Pending as the current session.
type FakeProvider struct {
	lock sync.Mutex

	Current     *identity.FederatedSession
	Pending     *identity.FederatedSession
	URL         string
	AuthURLErr  error
	ExchangeErr error
	SessionErr  error
	SignOutErr  error

	AuthURLCalls  int
	ExchangeCalls int
	SessionCalls  int
	SignOutCalls  int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{URL: "https://id.example.test/authorize"}
}

func (p *FakeProvider) AuthCodeURL(_ context.Context, provider string) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.AuthURLCalls++
	if p.AuthURLErr != nil {
		return "", p.AuthURLErr
	}
	return p.URL + "?provider=" + provider, nil
}

func (p *FakeProvider) Exchange(_ context.Context, cb identity.Callback) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.ExchangeCalls++
	if p.ExchangeErr != nil {
		return p.ExchangeErr
	}
	if p.Pending == nil {
		return errors.New("no pending session")
	}
	p.Current = p.Pending
	p.Pending = nil
	return nil
}

func (p *FakeProvider) Session(_ context.Context) (*identity.FederatedSession, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.SessionCalls++
	if p.SessionErr != nil {
		return nil, p.SessionErr
	}
	if p.Current == nil {
		return nil, nil
	}
	session := *p.Current
	return &session, nil
}

func (p *FakeProvider) SignOut(_ context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.SignOutCalls++
	p.Current = nil
	return p.SignOutErr
}
