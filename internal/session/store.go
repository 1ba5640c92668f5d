// Package session owns the authentication lifecycle of one browser workspace: bootstrap
// from the persisted token, login, signup, logout and forced invalidation after a 401.
//
// State is guarded by a mutex that is never held across network I/O. Every identity
// change bumps an epoch so work started under an older identity can be discarded.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sarah-ghe/Job-Tracker/internal/adapter/api"
	"github.com/sarah-ghe/Job-Tracker/internal/adapter/metrics"
	"github.com/sarah-ghe/Job-Tracker/internal/domain"
)

type State int

const (
	Bootstrapping State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "bootstrapping"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Client is the subset of the remote API the session needs.
type Client interface {
	Login(ctx context.Context, email, password string) (*api.Token, error)
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error)
	CurrentUser(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error)
	OnUnauthorized(fn api.UnauthorizedFunc) (unsubscribe func())
}

// Snapshot is a consistent copy of the session for rendering.
type Snapshot struct {
	State     State
	User      *domain.User
	Loading   bool
	LastError error
	Epoch     uint64
}

const invalidateTimeout = 5 * time.Second

type Store struct {
	client  Client
	state   domain.ClientStateStore
	metrics *metrics.SessionMetrics

	// commitMu serializes writes to persisted state together with the in-memory mirror,
	// so the two always agree on who won a race.
	commitMu sync.Mutex

	mu           sync.Mutex
	status       State
	token        string
	user         *domain.User
	bootstrapped bool
	bootLoading  bool
	inflight     int
	lastError    error
	epoch        uint64

	unsubscribe func()
}

type Option func(*Store)

func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a store in the Bootstrapping state and subscribes it to the client's 401 events.
func New(client Client, state domain.ClientStateStore, opts ...Option) *Store {
	s := &Store{client: client, state: state, status: Bootstrapping}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = client.OnUnauthorized(func(token string) { s.HandleUnauthorized(token) })
	return s
}

// Close detaches the store from the client's 401 events.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Bootstrap restores the session from the persisted token. It runs at most once; later calls
// return immediately. Any failure clears persisted state and leaves the store Anonymous.
func (s *Store) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return nil
	}
	s.bootstrapped = true
	s.bootLoading = true
	startEpoch := s.epoch
	s.mu.Unlock()

	token, err := s.state.Get(ctx, domain.StateKeyToken)
	if errors.Is(err, domain.ErrStateNotFound) {
		s.finishBootstrap(startEpoch, "", nil, nil)
		return nil
	}
	if err != nil {
		err = fmt.Errorf("failed to read persisted token: %w", err)
		s.finishBootstrap(startEpoch, "", nil, err)
		return err
	}

	// The candidate token is passed explicitly so a 401 here is handled below, not by the event.
	user, err := s.client.CurrentUser(api.WithToken(ctx, token))
	if err != nil {
		err = fmt.Errorf("failed to restore session: %w", err)
		s.finishBootstrap(startEpoch, "", nil, err)
		return err
	}

	s.finishBootstrap(startEpoch, token, user, nil)
	return nil
}

func (s *Store) finishBootstrap(startEpoch uint64, token string, user *domain.User, cause error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	superseded := s.epoch != startEpoch
	s.mu.Unlock()

	if superseded {
		s.mu.Lock()
		s.bootLoading = false
		s.mu.Unlock()
		return
	}

	if user == nil {
		if cause != nil {
			slog.Warn("Session bootstrap failed, clearing persisted state", "error", cause)
			s.clearPersisted()
		}
		s.mu.Lock()
		s.bootLoading = false
		s.setStatusLocked(Anonymous)
		s.mu.Unlock()
		return
	}

	s.cacheUser(context.Background(), user)
	s.mu.Lock()
	s.bootLoading = false
	s.token = token
	s.user = user
	s.lastError = nil
	s.epoch++
	s.setStatusLocked(Authenticated)
	s.mu.Unlock()
}

// Login authenticates, validates the issued token against /users/me and only then persists it.
// On failure nothing is persisted and the previous session is left as it was.
func (s *Store) Login(ctx context.Context, email, password string) (*domain.User, error) {
	s.begin()

	tok, err := s.client.Login(ctx, email, password)
	if err != nil {
		return nil, s.fail("login", err)
	}

	user, err := s.client.CurrentUser(api.WithToken(ctx, tok.AccessToken))
	if err != nil {
		return nil, s.fail("login", fmt.Errorf("failed to validate issued token: %w", err))
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.state.Set(ctx, domain.StateKeyToken, tok.AccessToken); err != nil {
		return nil, s.fail("login", fmt.Errorf("failed to persist token: %w", err))
	}
	s.cacheUser(ctx, user)

	s.mu.Lock()
	s.inflight--
	s.bootstrapped = true
	s.token = tok.AccessToken
	s.user = user
	s.lastError = nil
	s.epoch++
	s.setStatusLocked(Authenticated)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues("success").Inc()
	}
	slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
	return cloneUser(user), nil
}

// Signup creates an account. The caller still has to log in.
func (s *Store) Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error) {
	s.begin()

	user, err := s.client.Signup(ctx, req)
	if err != nil {
		return nil, s.fail("signup", err)
	}

	s.mu.Lock()
	s.inflight--
	s.lastError = nil
	s.mu.Unlock()

	slog.InfoContext(ctx, "Account created", "user_id", user.ID)
	return user, nil
}

// Logout clears persisted and in-memory identity. Calling it while anonymous is a no-op
// apart from re-clearing persisted state.
func (s *Store) Logout(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	err := s.state.Delete(ctx, domain.StateKeyToken, domain.StateKeyUser)

	s.mu.Lock()
	s.resetIdentityLocked()
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to clear persisted session: %w", err)
	}
	return nil
}

// HandleUnauthorized invalidates the session if token is the current one. A 401 for a token
// that has already been replaced or cleared is ignored, which makes concurrent failures
// collapse into a single logout.
func (s *Store) HandleUnauthorized(token string) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	current := s.token
	s.mu.Unlock()
	if token == "" || token != current {
		return false
	}

	s.clearPersisted()

	s.mu.Lock()
	s.resetIdentityLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ForcedLogouts.Inc()
	}
	slog.Info("Session invalidated by API")
	return true
}

// FetchProfile refreshes the cached user from /users/me.
func (s *Store) FetchProfile(ctx context.Context) (*domain.User, error) {
	startEpoch, err := s.requireAuth()
	if err != nil {
		return nil, err
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	s.replaceUser(ctx, startEpoch, user)
	return cloneUser(user), nil
}

// UpdateProfile sends the edit and adopts the returned user. On failure the previous user
// is kept.
func (s *Store) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error) {
	startEpoch, err := s.requireAuth()
	if err != nil {
		return nil, err
	}

	user, err := s.client.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}
	s.replaceUser(ctx, startEpoch, user)
	return cloneUser(user), nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:     s.status,
		User:      cloneUser(s.user),
		Loading:   s.bootLoading || s.inflight > 0,
		LastError: s.lastError,
		Epoch:     s.epoch,
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Store) IsAuthenticated() bool {
	return s.State() == Authenticated
}

// Epoch changes whenever the signed-in identity changes.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.lastError = nil
	s.mu.Unlock()
}

func (s *Store) fail(op string, err error) error {
	s.mu.Lock()
	s.inflight--
	s.lastError = err
	s.mu.Unlock()

	if s.metrics != nil && op == "login" {
		s.metrics.Logins.WithLabelValues("failure").Inc()
	}
	return err
}

func (s *Store) requireAuth() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Authenticated {
		return 0, domain.ErrNotAuthenticated
	}
	return s.epoch, nil
}

func (s *Store) replaceUser(ctx context.Context, startEpoch uint64, user *domain.User) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	current := s.epoch == startEpoch && s.status == Authenticated
	if current {
		s.user = user
	}
	s.mu.Unlock()

	if current {
		s.cacheUser(ctx, user)
	}
}

// resetIdentityLocked drops token and user. A bootstrap still in flight counts as an identity
// so its result is discarded. s.mu must be held.
func (s *Store) resetIdentityLocked() {
	hadIdentity := s.token != "" || s.status != Anonymous || s.bootLoading
	s.token = ""
	s.user = nil
	s.bootstrapped = true
	if hadIdentity {
		s.epoch++
	}
	s.setStatusLocked(Anonymous)
}

// setStatusLocked records a transition. s.mu must be held.
func (s *Store) setStatusLocked(next State) {
	if s.status == next {
		return
	}
	s.status = next
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(next.String()).Inc()
	}
}

func (s *Store) clearPersisted() {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := s.state.Delete(ctx, domain.StateKeyToken, domain.StateKeyUser); err != nil {
		slog.Error("Failed to clear persisted session", "error", err)
	}
}

// cacheUser stores the serialized user next to the token. Failures only cost a cache entry.
func (s *Store) cacheUser(ctx context.Context, user *domain.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.state.Set(ctx, domain.StateKeyUser, string(raw)); err != nil {
		slog.WarnContext(ctx, "Failed to cache user", "error", err)
	}
}

// CachedUser returns the user persisted next to the token, if any.
func (s *Store) CachedUser(ctx context.Context) (*domain.User, bool) {
	raw, err := s.state.Get(ctx, domain.StateKeyUser)
	if err != nil {
		return nil, false
	}
	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, false
	}
	return &u, true
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
