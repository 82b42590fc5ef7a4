// Package session holds the signed-in state of one viewer.
//
// A Provider is the only writer of its Session: Login, Signup, Logout and CheckAuth
// change it, everything else reads a copy through Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"campusmart/internal/client"
	"campusmart/internal/model"
)

// ErrNoToken is returned by a TokenStore that holds no token.
var ErrNoToken = errors.New("no token")

// AuthAPI is the subset of the listings API client the provider needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*client.AuthResult, error)
	Signup(ctx context.Context, name, email, password string) (*client.AuthResult, error)
	Me(ctx context.Context, token string) (*model.User, error)
	Logout(ctx context.Context, token string) error
}

// TokenStore persists the bearer token of one viewer.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// Session is a read-only snapshot of the auth state.
type Session struct {
	Authenticated bool
	User          *model.User
	// Err is the error of the last failed mutation.
	Err error
}

// Provider owns a Session.
type Provider struct {
	api    AuthAPI
	tokens TokenStore
	log    *slog.Logger

	mu      sync.Mutex
	session Session
}

// NewProvider creates an unauthenticated Provider. Call CheckAuth to restore a stored login.
func NewProvider(api AuthAPI, tokens TokenStore, log *slog.Logger) *Provider {
	return &Provider{api: api, tokens: tokens, log: log}
}

// Session returns a copy of the current state.
func (p *Provider) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Token returns the stored bearer token, or ErrNoToken.
func (p *Provider) Token(ctx context.Context) (string, error) {
	return p.tokens.Token(ctx)
}

// Login authenticates with email and password and stores the issued token.
func (p *Provider) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return p.fail(errors.New("email and password are required"))
	}
	res, err := p.api.Login(ctx, email, password)
	if err != nil {
		return p.fail(fmt.Errorf("login: %w", err))
	}
	return p.signIn(ctx, res)
}

// Signup registers a new account and signs it in.
func (p *Provider) Signup(ctx context.Context, name, email, password string) error {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return p.fail(errors.New("name, email and password are required"))
	}
	res, err := p.api.Signup(ctx, name, email, password)
	if err != nil {
		return p.fail(fmt.Errorf("signup: %w", err))
	}
	return p.signIn(ctx, res)
}

// Logout forgets the stored token. The backend is told on a best-effort basis.
func (p *Provider) Logout(ctx context.Context) error {
	token, err := p.tokens.Token(ctx)
	switch {
	case errors.Is(err, ErrNoToken):
	case err != nil:
		return p.fail(fmt.Errorf("read token: %w", err))
	default:
		if err := p.api.Logout(ctx, token); err != nil {
			p.log.Warn("backend logout", "error", err)
		}
	}

	if err := p.tokens.DeleteToken(ctx); err != nil {
		return p.fail(fmt.Errorf("delete token: %w", err))
	}
	p.set(Session{})
	return nil
}

// CheckAuth validates the stored token against the backend. Without a token the
// session becomes unauthenticated and no request is made. A rejected token is deleted.
func (p *Provider) CheckAuth(ctx context.Context) error {
	token, err := p.tokens.Token(ctx)
	if errors.Is(err, ErrNoToken) {
		p.set(Session{})
		return nil
	}
	if err != nil {
		return p.fail(fmt.Errorf("read token: %w", err))
	}

	user, err := p.api.Me(ctx, token)
	if err != nil {
		if derr := p.tokens.DeleteToken(ctx); derr != nil {
			p.log.Error("delete rejected token", "error", derr)
		}
		p.set(Session{Err: err})
		return fmt.Errorf("check auth: %w", err)
	}
	p.set(Session{Authenticated: true, User: user})
	return nil
}

func (p *Provider) signIn(ctx context.Context, res *client.AuthResult) error {
	if err := p.tokens.SaveToken(ctx, res.Token); err != nil {
		return p.fail(fmt.Errorf("save token: %w", err))
	}
	user := res.User
	p.set(Session{Authenticated: true, User: &user})
	return nil
}

// fail records err without changing who is signed in.
func (p *Provider) fail(err error) error {
	p.mu.Lock()
	p.session.Err = err
	p.mu.Unlock()
	return err
}

func (p *Provider) set(s Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}
