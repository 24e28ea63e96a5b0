package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pagado/internal/models"
	"pagado/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MockLedger struct {
	mu                    sync.Mutex
	posted                []*models.CommittedTransaction
	PostTransactionFunc   func(ctx context.Context, owner string, tx *models.CommittedTransaction) error
	QueryTransactionsFunc func(ctx context.Context, owner, periodKey string) ([]models.LedgerEntry, error)
}

func (m *MockLedger) PostTransaction(ctx context.Context, owner string, tx *models.CommittedTransaction) error {
	if m.PostTransactionFunc != nil {
		if err := m.PostTransactionFunc(ctx, owner, tx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.posted = append(m.posted, &cp)
	return nil
}

func (m *MockLedger) QueryTransactions(ctx context.Context, owner, periodKey string) ([]models.LedgerEntry, error) {
	if m.QueryTransactionsFunc != nil {
		return m.QueryTransactionsFunc(ctx, owner, periodKey)
	}
	return nil, nil
}

func (m *MockLedger) Posted() []*models.CommittedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.CommittedTransaction(nil), m.posted...)
}

func readyDraft() *models.Draft {
	d := models.NewDraft(models.TransactionTypeExpense, models.OriginAI)
	d.Amount = decimal.RequireFromString("5000.50")
	d.Category = "Comida"
	d.Account, d.AccountID = "Banco Nación", "a1"
	d.PaymentMethod = "Visa"
	return d
}

func newTestCommitter(ledger Ledger) *Committer {
	c := NewCommitter(ledger, repository.NewMemoryJournal(time.Hour), "ARS", zap.NewNop())
	c.now = func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestCommit(t *testing.T) {
	ledger := &MockLedger{}
	c := newTestCommitter(ledger)
	d := readyDraft()

	tx, err := c.Commit(context.Background(), "5491111111111", d, testProfile())
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	posted := ledger.Posted()
	if len(posted) != 1 {
		t.Fatalf("ledger appends = %d, want 1", len(posted))
	}
	got := posted[0]
	if got.Description != "Gasto registrado por IA" {
		t.Errorf("Description = %q", got.Description)
	}
	if got.Currency != "ARS" {
		t.Errorf("Currency = %q, want default ARS", got.Currency)
	}
	if got.Account != "Banco Nación" || got.Method != "Visa" || got.Category != "Comida" {
		t.Errorf("posted = %+v", got)
	}
	if got.IdempotencyKey == "" || got.IdempotencyKey != tx.IdempotencyKey {
		t.Errorf("IdempotencyKey = %q, want %q", got.IdempotencyKey, tx.IdempotencyKey)
	}
	if d.Description != "" || d.Currency != "" {
		t.Error("Commit must not modify the draft")
	}
}

func TestCommitTwiceAppendsOnce(t *testing.T) {
	ledger := &MockLedger{}
	c := newTestCommitter(ledger)
	d := readyDraft()

	first, err := c.Commit(context.Background(), "u1", d, testProfile())
	if err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	second, err := c.Commit(context.Background(), "u1", d.Clone(), testProfile())
	if err != nil {
		t.Fatalf("second Commit() error = %v", err)
	}

	if n := len(ledger.Posted()); n != 1 {
		t.Errorf("ledger appends = %d, want 1", n)
	}
	if first.IdempotencyKey != second.IdempotencyKey {
		t.Error("replayed commit should return the journaled transaction")
	}
}

func TestCommitConcurrentAppendsOnce(t *testing.T) {
	release := make(chan struct{})
	ledger := &MockLedger{
		PostTransactionFunc: func(ctx context.Context, owner string, tx *models.CommittedTransaction) error {
			<-release
			return nil
		},
	}
	c := newTestCommitter(ledger)
	d := readyDraft()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Commit(context.Background(), "u1", d, testProfile()); err != nil {
				t.Errorf("Commit() error = %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := len(ledger.Posted()); n != 1 {
		t.Errorf("ledger appends = %d, want 1", n)
	}
}

func TestCommitFailureKeepsDraftRetryable(t *testing.T) {
	fail := true
	ledger := &MockLedger{
		PostTransactionFunc: func(ctx context.Context, owner string, tx *models.CommittedTransaction) error {
			if fail {
				return errors.New("502 bad gateway")
			}
			return nil
		},
	}
	c := newTestCommitter(ledger)
	d := readyDraft()

	if _, err := c.Commit(context.Background(), "u1", d, testProfile()); !errors.Is(err, ErrCommit) {
		t.Fatalf("Commit() error = %v, want ErrCommit", err)
	}
	if len(ledger.Posted()) != 0 {
		t.Fatal("failed append must not be recorded")
	}

	fail = false
	if _, err := c.Commit(context.Background(), "u1", d, testProfile()); err != nil {
		t.Fatalf("retry Commit() error = %v", err)
	}
	if len(ledger.Posted()) != 1 {
		t.Error("retry should append exactly once")
	}
}

func TestCommitRejectsUnresolvedDraft(t *testing.T) {
	c := newTestCommitter(&MockLedger{})
	d := readyDraft()
	d.PaymentMethod = ""

	if _, err := c.Commit(context.Background(), "u1", d, testProfile()); !errors.Is(err, ErrCommit) {
		t.Errorf("Commit() error = %v, want ErrCommit", err)
	}
	if _, err := c.Commit(context.Background(), "u1", nil, testProfile()); !errors.Is(err, ErrCommit) {
		t.Errorf("Commit(nil) error = %v, want ErrCommit", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	d := readyDraft()
	key := IdempotencyKey("u1", d)
	if len(key) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(key))
	}
	if IdempotencyKey("u1", d.Clone()) != key {
		t.Error("key should be stable for the same draft")
	}

	other := d.Clone()
	other.Amount = decimal.NewFromInt(1)
	if IdempotencyKey("u1", other) == key {
		t.Error("key should change with resolved fields")
	}
	if IdempotencyKey("u2", d) == key {
		t.Error("key should change with the user")
	}
	fresh := readyDraft()
	if IdempotencyKey("u1", fresh) == key {
		t.Error("a new draft with equal fields is a different transaction")
	}
}

func TestLastTransaction(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC) }
	var gotOwner, gotPeriod string
	ledger := &MockLedger{
		QueryTransactionsFunc: func(ctx context.Context, owner, periodKey string) ([]models.LedgerEntry, error) {
			gotOwner, gotPeriod = owner, periodKey
			return []models.LedgerEntry{
				{ID: "1", Type: models.TransactionTypeExpense, Date: day(2)},
				{ID: "2", Type: models.TransactionTypeIncome, Date: day(10)},
				{ID: "3", Type: models.TransactionTypeExpense, Date: day(9)},
				{ID: "4", Type: models.TransactionTypeExpense, Date: day(5)},
			}, nil
		},
	}
	c := newTestCommitter(ledger)

	e, err := c.LastTransaction(context.Background(), testProfile(), models.TransactionTypeExpense)
	if err != nil {
		t.Fatalf("LastTransaction() error = %v", err)
	}
	if e == nil || e.ID != "3" {
		t.Errorf("LastTransaction() = %+v, want entry 3", e)
	}
	if gotOwner != "ana@example.com" || gotPeriod != "2025-03-14" {
		t.Errorf("query owner=%q period=%q", gotOwner, gotPeriod)
	}

	ledger.QueryTransactionsFunc = func(ctx context.Context, owner, periodKey string) ([]models.LedgerEntry, error) {
		return nil, nil
	}
	if e, err := c.LastTransaction(context.Background(), testProfile(), models.TransactionTypeIncome); err != nil || e != nil {
		t.Errorf("empty ledger: got %+v, %v", e, err)
	}
}
