package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"pagado/internal/models"
)

func testProfile() *models.UserProfile {
	return &models.UserProfile{
		Name:         "Ana Pérez",
		Email:        "ana@example.com",
		Subscription: true,
		Categories: []models.Category{
			{ID: "c1", Name: "Comida"},
			{ID: "c2", Name: "Transporte"},
			{ID: "c3", Name: "Sueldo"},
		},
		Accounts: []models.Account{
			{ID: "a1", Title: "Banco Nación"},
			{ID: "a2", Title: "Efectivo"},
			{ID: "a3", Title: "Mercado Pago"},
		},
		PaymentMethods: []models.PaymentMethod{
			{ID: "m1", Title: "Visa", CardType: "crédito", AccountID: "a1"},
			{ID: "m2", Title: "Maestro", CardType: "débito", AccountID: "a1"},
			{ID: "m3", Title: "Billetera", AccountID: "a3"},
		},
	}
}

// MockMessenger records everything sent through it.
type MockMessenger struct {
	mu                sync.Mutex
	sent              []models.OutgoingMessage
	DownloadMediaFunc func(ctx context.Context, media *models.Media) (*models.Media, error)
	SendErr           error
}

func (m *MockMessenger) SendText(ctx context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, models.Text(text))
	return m.SendErr
}

func (m *MockMessenger) SendList(ctx context.Context, to string, list *models.ListMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, models.OutgoingMessage{List: list})
	return m.SendErr
}

func (m *MockMessenger) DownloadMedia(ctx context.Context, media *models.Media) (*models.Media, error) {
	if m.DownloadMediaFunc != nil {
		return m.DownloadMediaFunc(ctx, media)
	}
	out := *media
	out.Data = []byte("media-bytes")
	return &out, nil
}

func (m *MockMessenger) Sent() []models.OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutgoingMessage(nil), m.sent...)
}

// Transcript joins the text and list bodies of everything sent.
func (m *MockMessenger) Transcript() string {
	return messagesText(m.Sent())
}

func (m *MockMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

func messagesText(msgs []models.OutgoingMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Text)
		if m.List != nil {
			b.WriteString(m.List.Body)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeScheduler never fires on its own; tests call Fire.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Timers() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTimer(nil), s.timers...)
}

func (s *fakeScheduler) Active() int {
	n := 0
	for _, t := range s.Timers() {
		if !t.stopped {
			n++
		}
	}
	return n
}
