package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/alejoacosta74/paradex-api/internal/backoff"
	"github.com/alejoacosta74/paradex-api/internal/config"
	"github.com/alejoacosta74/paradex-api/internal/events"
	"github.com/alejoacosta74/paradex-api/internal/signer"
)

// State is the session's credential state.
type State int

const (
	StateNoToken State = iota
	StateValid
	StateExpiring
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateNoToken:
		return "no_token"
	case StateValid:
		return "valid"
	case StateExpiring:
		return "expiring"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// challengeTTL is the advertised validity of a signed auth challenge.
const challengeTTL = 24 * time.Hour

// Session holds the current bearer token and transparently re-authenticates
// when it is expired or inside the refresh margin. The refresh path is the
// only writer; readers go through the mutex. Concurrent callers during a
// refresh share one in-flight request.
type Session struct {
	cfg      config.Config
	signer   *signer.Signer
	account  string
	endpoint Endpoint
	policy   backoff.Policy
	logger   *logrus.Entry
	bus      events.Bus
	now      func() time.Time

	mu    sync.RWMutex
	token Token
	state State

	group singleflight.Group
	wake  chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock overrides the session's time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WithBus publishes refresh outcomes to the event bus.
func WithBus(bus events.Bus) SessionOption {
	return func(s *Session) {
		s.bus = bus
	}
}

// NewSession builds a session for the given signer and account address.
func NewSession(cfg config.Config, sg *signer.Signer, account string, endpoint Endpoint, opts ...SessionOption) *Session {
	s := &Session{
		cfg:      cfg,
		signer:   sg,
		account:  account,
		endpoint: endpoint,
		policy:   backoff.Policy{Initial: cfg.BackoffInitial, Cap: cfg.BackoffCap},
		logger:   logrus.WithField("component", "auth_session"),
		now:      time.Now,
		state:    StateNoToken,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current credential state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns a valid bearer token, refreshing first when the cached one
// is expired or inside the refresh margin. Concurrent callers observing an
// in-flight refresh share its result.
func (s *Session) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok.Value, nil
	}

	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		// A caller that queued behind a finished refresh sees the fresh
		// token here without another round trip.
		if tok, ok := s.cached(); ok {
			return tok.Value, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Run drives proactive background refresh until the context is cancelled.
// It fires RefreshMargin before expiry so foreground callers rarely observe
// a refresh stall. A failed background refresh degrades the state to
// Expiring; the next Token call retries synchronously.
func (s *Session) Run(ctx context.Context) {
	s.logger.Debug("Starting background refresh")
	for {
		s.mu.RLock()
		tok := s.token
		s.mu.RUnlock()

		if tok.Zero() {
			// The first token is acquired by the foreground; sleep until
			// install wakes us.
			select {
			case <-ctx.Done():
				s.logger.Debug("Background refresh stopped")
				return
			case <-s.wake:
			}
			continue
		}

		wait := tok.ExpiresAt.Add(-s.cfg.RefreshMargin).Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("Background refresh stopped")
			return
		case <-s.wake:
			// Token changed; recompute the deadline.
		case <-time.After(wait):
			if _, err := s.Token(ctx); err != nil {
				s.logger.Warnf("Background refresh failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.BackoffCap):
				}
			}
		}
	}
}

// cached returns the token if it is still comfortably valid.
func (s *Session) cached() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token.Zero() {
		return Token{}, false
	}
	if s.now().After(s.token.ExpiresAt.Add(-s.cfg.RefreshMargin)) {
		return Token{}, false
	}
	return s.token, true
}

// refresh signs a fresh challenge and exchanges it for a token, retrying
// endpoint failures with bounded jittered backoff. Signing errors are fatal
// and never retried; retrying a deterministic failure cannot change it.
func (s *Session) refresh(ctx context.Context) (string, error) {
	prior := s.swapState(StateRefreshing)

	var lastErr error
	for attempt := 0; attempt < s.cfg.AuthRetryMax; attempt++ {
		now := s.now().Unix()
		challenge := &signer.AuthChallenge{Timestamp: now, Expiry: now + int64(challengeTTL.Seconds())}

		signed, err := s.signer.Sign(challenge)
		if err != nil {
			s.setState(prior)
			s.publishOutcome("failure")
			return "", err
		}

		tok, err := s.endpoint.Authenticate(ctx, signed, s.account)
		if err == nil {
			s.install(tok)
			s.publishOutcome("success")
			s.logger.Infof("Bearer token refreshed, valid until %s", tok.ExpiresAt.Format(time.RFC3339))
			return tok.Value, nil
		}
		lastErr = err
		s.logger.Warnf("Auth attempt %d failed: %v", attempt+1, err)

		if ctxErr := sleepCtx(ctx, s.policy.Duration(attempt)); ctxErr != nil {
			lastErr = ctxErr
			break
		}
	}

	// Remain in the prior state; an Expiring token is still usable until
	// its real expiry.
	if prior == StateValid {
		prior = StateExpiring
	}
	s.setState(prior)

	s.publishOutcome("failure")
	if lastErr == nil {
		lastErr = &AuthFailureError{Message: "no refresh attempts configured"}
	}
	var af *AuthFailureError
	if errors.As(lastErr, &af) {
		return "", lastErr
	}
	return "", &AuthFailureError{Message: lastErr.Error()}
}

func (s *Session) publishOutcome(outcome string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.TopicAuthRefresh, events.AuthRefresh{Outcome: outcome})
}

func (s *Session) install(tok Token) {
	s.mu.Lock()
	s.token = tok
	s.state = StateValid
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) swapState(st State) State {
	s.mu.Lock()
	prior := s.state
	s.state = st
	s.mu.Unlock()
	return prior
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
