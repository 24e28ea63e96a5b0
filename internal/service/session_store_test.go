package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pagado/internal/models"

	"go.uber.org/zap"
)

// MockProfileFetcher is a ProfileFetcher driven by FetchProfileFunc.
type MockProfileFetcher struct {
	FetchProfileFunc func(ctx context.Context, userID string) (*models.UserProfile, error)
	calls            int32
}

func (m *MockProfileFetcher) FetchProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.FetchProfileFunc(ctx, userID)
}

func (m *MockProfileFetcher) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(fetcher ProfileFetcher, clock *fakeClock) *SessionStore {
	s := NewSessionStore(fetcher, 5*time.Minute, zap.NewNop())
	s.now = clock.Now
	return s
}

func TestGetProfileTTL(t *testing.T) {
	clock := newFakeClock()
	fetcher := &MockProfileFetcher{FetchProfileFunc: func(ctx context.Context, userID string) (*models.UserProfile, error) {
		return testProfile(), nil
	}}
	store := newTestStore(fetcher, clock)
	ctx := context.Background()

	if _, err := store.GetProfile(ctx, "u1"); err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	clock.Advance(4*time.Minute + 59*time.Second)
	if _, err := store.GetProfile(ctx, "u1"); err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Errorf("fresh profile should be served from cache, calls = %d", fetcher.Calls())
	}

	clock.Advance(time.Second)
	if _, err := store.GetProfile(ctx, "u1"); err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if fetcher.Calls() != 2 {
		t.Errorf("profile at exactly the TTL should refetch, calls = %d", fetcher.Calls())
	}
}

func TestGetProfileSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetcher := &MockProfileFetcher{FetchProfileFunc: func(ctx context.Context, userID string) (*models.UserProfile, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return testProfile(), nil
	}}
	store := newTestStore(fetcher, newFakeClock())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*models.UserProfile, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := store.GetProfile(context.Background(), "u1")
			if err != nil {
				t.Errorf("GetProfile() error = %v", err)
			}
			results[i] = p
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	if fetcher.Calls() != 1 {
		t.Errorf("concurrent callers should share one fetch, calls = %d", fetcher.Calls())
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatal("all callers should observe the same profile")
		}
	}
}

func TestGetProfileOutlivesFirstCaller(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := &MockProfileFetcher{FetchProfileFunc: func(ctx context.Context, userID string) (*models.UserProfile, error) {
		close(started)
		<-release
		if _, ok := ctx.Deadline(); !ok {
			t.Error("shared fetch should carry its own deadline")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return testProfile(), nil
	}}
	store := newTestStore(fetcher, newFakeClock())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() {
		_, err := store.GetProfile(firstCtx, "u1")
		errs <- err
	}()
	<-started
	go func() {
		_, err := store.GetProfile(context.Background(), "u1")
		errs <- err
	}()

	cancelFirst()
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("GetProfile() error = %v, want the shared refresh to succeed", err)
		}
	}
}

func TestGetProfileFailureKeepsStaleCopy(t *testing.T) {
	clock := newFakeClock()
	fail := false
	fetcher := &MockProfileFetcher{FetchProfileFunc: func(ctx context.Context, userID string) (*models.UserProfile, error) {
		if fail {
			return nil, errors.New("upstream down")
		}
		return testProfile(), nil
	}}
	store := newTestStore(fetcher, clock)
	ctx := context.Background()

	first, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	fail = true
	clock.Advance(6 * time.Minute)
	if _, err := store.GetProfile(ctx, "u1"); !errors.Is(err, ErrProfileFetch) {
		t.Fatalf("GetProfile() error = %v, want ErrProfileFetch", err)
	}

	store.mu.Lock()
	kept := store.profiles["u1"]
	store.mu.Unlock()
	if kept != first {
		t.Error("stale profile should be kept after a failed refresh")
	}
}

func TestFlagsAndDraft(t *testing.T) {
	store := newTestStore(&MockProfileFetcher{}, newFakeClock())

	active, route := true, models.RouteAI
	store.UpdateFlags("u1", FlagsUpdate{ActiveSession: &active, Route: &route})
	flags := store.GetFlags("u1")
	if !flags.ActiveSession || flags.Route != models.RouteAI || flags.AIWelcomeShown {
		t.Errorf("GetFlags() = %+v", flags)
	}

	if store.GetDraft("u1") != nil {
		t.Error("new session should have no draft")
	}

	draft := models.NewDraft(models.TransactionTypeExpense, models.OriginAI)
	draft.Category = "Comida"
	store.SetDraft("u1", draft)
	if _, ok := store.GetState("u1").(models.AwaitingAccount); !ok {
		t.Errorf("draft without account should await account, got %s", store.GetState("u1").Name())
	}
	if store.GetDraft("u1") != draft {
		t.Error("GetDraft() should return the stored draft")
	}

	store.SetDraft("u1", nil)
	if !models.IsIdle(store.GetState("u1")) {
		t.Error("SetDraft(nil) should return to idle")
	}
}

func TestWithSessionSerializesPerUser(t *testing.T) {
	store := newTestStore(&MockProfileFetcher{}, newFakeClock())

	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithSession(context.Background(), "u1", func(sess *Session) error {
				if atomic.AddInt32(&inside, 1) != 1 {
					t.Error("two callbacks ran concurrently for one user")
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithSession() error = %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestWithSessionDifferentUsersDoNotBlock(t *testing.T) {
	store := newTestStore(&MockProfileFetcher{}, newFakeClock())

	holding := make(chan struct{})
	release := make(chan struct{})
	go store.WithSession(context.Background(), "u1", func(sess *Session) error {
		close(holding)
		<-release
		return nil
	})
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.WithSession(ctx, "u2", func(sess *Session) error { return nil }); err != nil {
		t.Fatalf("another user's lock should be independent: %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := store.WithSession(ctx2, "u1", func(sess *Session) error { return nil }); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("WithSession() on held lock error = %v, want ErrSessionBusy", err)
	}
}

func TestWithSessionWritesBack(t *testing.T) {
	store := newTestStore(&MockProfileFetcher{}, newFakeClock())
	draft := models.NewDraft(models.TransactionTypeIncome, models.OriginAI)

	wantErr := errors.New("callback failed")
	err := store.WithSession(context.Background(), "u1", func(sess *Session) error {
		sess.Flags.ActiveSession = true
		sess.State = models.ReadyToCommit{Draft: draft}
		sess.Generation = 99
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithSession() error = %v", err)
	}

	if !store.GetFlags("u1").ActiveSession {
		t.Error("flags should be written back")
	}
	if store.GetDraft("u1") != draft {
		t.Error("state should be written back even when fn fails")
	}
	if store.Generation("u1") != 0 {
		t.Error("generation must not be writable through the session view")
	}
}
