package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pagado/internal/models"
	"pagado/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const profileFetchTimeout = 15 * time.Second

// ProfileFetcher loads a fresh profile from the upstream API.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Session is the mutable view handed to WithSession callbacks. Generation is
// read-only; changes to it are discarded.
type Session struct {
	UserID     string
	Flags      models.SessionFlags
	State      models.State
	Generation uint64
}

type sessionEntry struct {
	lock       chan struct{}
	flags      models.SessionFlags
	state      models.State
	generation uint64
}

// FlagsUpdate is a partial flags update; nil fields are left unchanged.
type FlagsUpdate struct {
	ActiveSession  *bool
	AIWelcomeShown *bool
	Route          *models.Route
}

// SessionStore keeps per-user flags, disambiguation state and the cached
// catalog profile. Operations on different users never block each other.
type SessionStore struct {
	fetcher ProfileFetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	profiles map[string]*models.UserProfile
}

func NewSessionStore(fetcher ProfileFetcher, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		fetcher:  fetcher,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
		profiles: make(map[string]*models.UserProfile),
	}
}

func (s *SessionStore) entry(userID string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[userID]
	if !ok {
		e = &sessionEntry{
			lock:  make(chan struct{}, 1),
			state: models.Idle{},
		}
		s.sessions[userID] = e
	}
	return e
}

// GetProfile returns the cached profile while it is younger than the TTL and
// refreshes it otherwise. Concurrent refreshes for one user share a single
// upstream call. A failed refresh keeps the stale copy but does not return it.
func (s *SessionStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if p := s.freshProfile(userID); p != nil {
		return p, nil
	}

	v, err, shared := s.group.Do(userID, func() (interface{}, error) {
		if p := s.freshProfile(userID); p != nil {
			return p, nil
		}

		// Shared by every waiter, so it must outlive the first caller.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileFetchTimeout)
		defer cancel()

		profile, err := s.fetcher.FetchProfile(fetchCtx, userID)
		if err != nil {
			return nil, err
		}
		profile.UserID = userID
		profile.FetchedAt = s.now()

		s.mu.Lock()
		s.profiles[userID] = profile
		s.mu.Unlock()
		return profile, nil
	})
	if err != nil {
		s.logger.Warn("Profile refresh failed", logger.User(userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}
	if shared {
		s.logger.Debug("Profile refresh shared", logger.User(userID))
	}
	return v.(*models.UserProfile), nil
}

func (s *SessionStore) freshProfile(userID string) *models.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok || s.now().Sub(p.FetchedAt) >= s.ttl {
		return nil
	}
	return p
}

// InvalidateProfile forces the next GetProfile to refetch.
func (s *SessionStore) InvalidateProfile(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		stale := *p
		stale.FetchedAt = time.Time{}
		s.profiles[userID] = &stale
	}
}

func (s *SessionStore) GetFlags(userID string) models.SessionFlags {
	e := s.entry(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.flags
}

func (s *SessionStore) UpdateFlags(userID string, update FlagsUpdate) {
	e := s.entry(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	applyFlags(&e.flags, update)
}

func applyFlags(flags *models.SessionFlags, update FlagsUpdate) {
	if update.ActiveSession != nil {
		flags.ActiveSession = *update.ActiveSession
	}
	if update.AIWelcomeShown != nil {
		flags.AIWelcomeShown = *update.AIWelcomeShown
	}
	if update.Route != nil {
		flags.Route = *update.Route
	}
}

func (s *SessionStore) GetState(userID string) models.State {
	e := s.entry(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.state
}

// GetDraft returns the pending draft, or nil when the session is idle.
func (s *SessionStore) GetDraft(userID string) *models.Draft {
	return models.DraftOf(s.GetState(userID))
}

// SetDraft replaces the pending draft. A nil draft returns the session to idle;
// otherwise the state is derived from what the draft still lacks.
func (s *SessionStore) SetDraft(userID string, draft *models.Draft) {
	e := s.entry(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.state = stateForDraft(draft)
}

func stateForDraft(d *models.Draft) models.State {
	switch {
	case d == nil:
		return models.Idle{}
	case d.Category == "":
		return models.AwaitingCategory{Draft: d}
	case d.NeedsAccount():
		return models.AwaitingAccount{Draft: d}
	case d.NeedsPaymentMethod():
		return models.AwaitingPaymentMethod{Draft: d}
	case !d.HasAmount():
		return models.AwaitingDetails{Draft: d}
	default:
		return models.ReadyToCommit{Draft: d}
	}
}

// Generation returns the counter bumped by Touch.
func (s *SessionStore) Generation(userID string) uint64 {
	e := s.entry(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.generation
}

// Touch records activity for userID and returns the new generation.
func (s *SessionStore) Touch(userID string) uint64 {
	e := s.entry(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.generation++
	return e.generation
}

// WithSession runs fn while holding the user's session lock. Flags and State
// set on the Session are written back when fn returns, whatever its result.
// fn must use the Session it receives rather than the store's own accessors.
func (s *SessionStore) WithSession(ctx context.Context, userID string, fn func(sess *Session) error) error {
	e := s.entry(userID)

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSessionBusy, ctx.Err())
	}
	defer func() { <-e.lock }()

	s.mu.Lock()
	sess := &Session{
		UserID:     userID,
		Flags:      e.flags,
		State:      e.state,
		Generation: e.generation,
	}
	s.mu.Unlock()

	err := fn(sess)

	if sess.State == nil {
		sess.State = models.Idle{}
	}
	s.mu.Lock()
	e.flags = sess.Flags
	e.state = sess.State
	s.mu.Unlock()

	return err
}
