// Package auth owns the account credential: it decides when the access token
// is stale, renews it at most once at a time, and authorizes outgoing
// requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
)

var (
	// ErrTokenExpired marks a missing, malformed or expired token. It drives
	// renewal and is not surfaced as a failure on its own.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrRenewalInProgress is returned in fail-fast mode when another caller
	// is already renewing the credential.
	ErrRenewalInProgress = errors.New("auth: refresh in progress")
	// ErrIncompleteCredential is returned when the service answers without
	// both tokens.
	ErrIncompleteCredential = errors.New("auth: service returned an incomplete credential")
)

const (
	renewKey              = "renew"
	defaultRenewalTimeout = 30 * time.Second
)

// Remote is the part of the game service that issues credentials. Both calls
// must be sent without a bearer token.
type Remote interface {
	Authenticate(ctx context.Context, webAppData string) (model.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (model.Credential, error)
}

// Provider supplies the one-time login artifact used when no refresh path is
// available.
type Provider interface {
	WebAppData(ctx context.Context) (string, error)
}

type Logger interface {
	JustLog(msg string)
}

type Option func(*TokenStore)

func WithClock(now func() time.Time) Option {
	return func(s *TokenStore) { s.now = now }
}

// WithFailFast makes callers that find a renewal running fail with
// ErrRenewalInProgress instead of waiting for its result.
func WithFailFast(enabled bool) Option {
	return func(s *TokenStore) { s.failFast = enabled }
}

func WithRenewalTimeout(d time.Duration) Option {
	return func(s *TokenStore) {
		if d > 0 {
			s.renewalTimeout = d
		}
	}
}

// WithCredentialHook registers fn to run after every successful renewal.
func WithCredentialHook(fn func(model.Credential)) Option {
	return func(s *TokenStore) { s.onChange = fn }
}

// WithLoginHook registers fn to run before every full login, i.e. when no
// usable refresh token is left.
func WithLoginHook(fn func()) Option {
	return func(s *TokenStore) { s.beforeLogin = fn }
}

func WithLogger(l Logger) Option {
	return func(s *TokenStore) { s.log = l }
}

// TokenStore is the only writer of the live credential.
type TokenStore struct {
	remote   Remote
	provider Provider

	now            func() time.Time
	failFast       bool
	renewalTimeout time.Duration
	onChange       func(model.Credential)
	beforeLogin    func()
	log            Logger

	mu   sync.RWMutex
	cred *model.Credential

	group    singleflight.Group
	renewing atomic.Bool
}

func NewTokenStore(remote Remote, provider Provider, opts ...Option) *TokenStore {
	s := &TokenStore{
		remote:         remote,
		provider:       provider,
		now:            time.Now,
		renewalTimeout: defaultRenewalTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCredential replaces the stored credential without contacting the
// service, e.g. when restoring a persisted session. Incomplete credentials
// clear the store.
func (s *TokenStore) SetCredential(c model.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.Complete() {
		s.cred = nil
		return
	}
	s.cred = &c
}

// Credential returns a copy of the stored credential.
func (s *TokenStore) Credential() (model.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return model.Credential{}, false
	}
	return *s.cred, true
}

// CheckToken returns nil when token is valid at the store's current time and
// an error wrapping ErrTokenExpired otherwise.
func (s *TokenStore) CheckToken(token string) error {
	exp, err := model.TokenExpiry(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	if !s.now().Before(exp) {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, exp.UTC().Format(time.RFC3339))
	}
	return nil
}

// IsValid reports whether a credential is set and its access token has not
// expired.
func (s *TokenStore) IsValid() bool {
	cred, ok := s.Credential()
	return ok && s.CheckToken(cred.Access) == nil
}

// Renewing reports whether a renewal is currently running.
func (s *TokenStore) Renewing() bool {
	return s.renewing.Load()
}

// EnsureAuthorized returns a credential with a valid access token, renewing
// it first when needed. Concurrent callers share a single renewal; the
// renewal runs under its own timeout and keeps going if a waiting caller's
// context ends.
func (s *TokenStore) EnsureAuthorized(ctx context.Context) (model.Credential, error) {
	if cred, ok := s.Credential(); ok && s.CheckToken(cred.Access) == nil {
		return cred, nil
	}
	if s.failFast && s.renewing.Load() {
		return model.Credential{}, ErrRenewalInProgress
	}

	ch := s.group.DoChan(renewKey, func() (interface{}, error) {
		s.renewing.Store(true)
		defer s.renewing.Store(false)

		if cred, ok := s.Credential(); ok && s.CheckToken(cred.Access) == nil {
			return cred, nil
		}

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.renewalTimeout)
		defer cancel()
		return s.renew(rctx)
	})

	select {
	case <-ctx.Done():
		return model.Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Credential{}, res.Err
		}
		return res.Val.(model.Credential), nil
	}
}

func (s *TokenStore) renew(ctx context.Context) (model.Credential, error) {
	var (
		fresh model.Credential
		err   error
	)

	current, ok := s.Credential()
	if ok && s.CheckToken(current.Refresh) == nil {
		s.logf("access token expired, refreshing")
		fresh, err = s.remote.Refresh(ctx, current.Refresh)
		if err != nil {
			return model.Credential{}, fmt.Errorf("refresh token: %w", err)
		}
	} else {
		s.logf("no usable refresh token, logging in")
		if s.beforeLogin != nil {
			s.beforeLogin()
		}
		data, perr := s.provider.WebAppData(ctx)
		if perr != nil {
			return model.Credential{}, fmt.Errorf("obtain web app data: %w", perr)
		}
		fresh, err = s.remote.Authenticate(ctx, data)
		if err != nil {
			return model.Credential{}, fmt.Errorf("authenticate: %w", err)
		}
	}

	if !fresh.Complete() {
		return model.Credential{}, ErrIncompleteCredential
	}

	s.mu.Lock()
	s.cred = &fresh
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(fresh)
	}
	s.logf("credential renewed")
	return fresh, nil
}

func (s *TokenStore) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.JustLog(fmt.Sprintf(format, args...))
	}
}
