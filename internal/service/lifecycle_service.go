package service

import (
	"context"
	"sync"
	"time"

	"pagado/internal/models"
	"pagado/pkg/logger"

	"go.uber.org/zap"
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ClockScheduler schedules on the wall clock.
func ClockScheduler() Scheduler { return clockScheduler{} }

type armedTimer struct {
	timer      Timer
	generation uint64
}

// LifecycleManager opens sessions on first contact and closes them after a
// period of inactivity. Each user has at most one pending inactivity timer.
type LifecycleManager struct {
	store     *SessionStore
	gate      *AuthorizationGate
	messenger Messenger
	scheduler Scheduler
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	timers map[string]armedTimer
}

func NewLifecycleManager(
	store *SessionStore,
	gate *AuthorizationGate,
	messenger Messenger,
	scheduler Scheduler,
	timeout time.Duration,
	logger *zap.Logger,
) *LifecycleManager {
	if scheduler == nil {
		scheduler = ClockScheduler()
	}
	return &LifecycleManager{
		store:     store,
		gate:      gate,
		messenger: messenger,
		scheduler: scheduler,
		timeout:   timeout,
		logger:    logger,
		timers:    make(map[string]armedTimer),
	}
}

// Touch records activity for userID and re-arms its inactivity timer. It is
// called before the session lock is taken so that a timer racing with the
// message sees a newer generation and gives up.
func (m *LifecycleManager) Touch(userID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.store.Touch(userID)
	m.arm(userID, gen)
	return gen
}

// arm replaces the user's timer with one for gen. A generation older than the
// armed one is ignored so the live timer always matches the session. m.mu must
// be held.
func (m *LifecycleManager) arm(userID string, gen uint64) {
	prev, ok := m.timers[userID]
	if ok && prev.generation > gen {
		return
	}
	if ok {
		prev.timer.Stop()
	}
	m.timers[userID] = armedTimer{
		timer:      m.scheduler.AfterFunc(m.timeout, func() { m.expire(userID, gen) }),
		generation: gen,
	}
}

// Start opens the session on first contact and returns the welcome to send.
// The boolean reports whether the event should still be handled afterwards:
// always for an open session, and on first contact only for media and list
// replies.
func (m *LifecycleManager) Start(sess *Session, ev models.Event, profile *models.UserProfile) ([]models.OutgoingMessage, bool) {
	if sess.Flags.ActiveSession {
		return nil, true
	}

	sess.Flags.ActiveSession = true
	sess.State = models.Idle{}

	var msgs []models.OutgoingMessage
	if m.gate.Eligible(sess.UserID, profile) {
		sess.Flags.Route = models.RouteAI
		sess.Flags.AIWelcomeShown = true
		msgs = append(msgs, models.Text(aiWelcomeText(profile.FirstName())))
	} else {
		sess.Flags.Route = models.RouteManual
		msgs = append(msgs, models.Text(welcomeText(profile.FirstName())), mainMenu())
	}

	m.logger.Info("Session started", logger.User(sess.UserID), zap.String("route", string(sess.Flags.Route)))
	return msgs, ev.Modality.IsMedia() || ev.ReplyID != ""
}

func (m *LifecycleManager) expire(userID string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired := false
	err := m.store.WithSession(ctx, userID, func(sess *Session) error {
		if sess.Generation != gen || !sess.Flags.ActiveSession {
			return nil
		}
		sess.Flags = models.SessionFlags{}
		sess.State = models.Idle{}
		expired = true
		return nil
	})
	if err != nil {
		m.logger.Warn("Inactivity expiry skipped", logger.User(userID), zap.Error(err))
		return
	}

	m.mu.Lock()
	if t, ok := m.timers[userID]; ok && t.generation == gen {
		delete(m.timers, userID)
	}
	m.mu.Unlock()

	if !expired {
		m.logger.Debug("Stale inactivity timer ignored", logger.User(userID), zap.Uint64("generation", gen))
		return
	}

	m.logger.Info("Session expired", logger.User(userID))
	if err := m.messenger.SendText(ctx, userID, msgInactivity); err != nil {
		m.logger.Warn("Failed to send inactivity notice", logger.User(userID), zap.Error(err))
	}
}

// Pending reports the number of armed timers.
func (m *LifecycleManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Shutdown cancels every pending timer.
func (m *LifecycleManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, t := range m.timers {
		t.timer.Stop()
		delete(m.timers, userID)
	}
}
