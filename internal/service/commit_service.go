package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"pagado/internal/models"
	"pagado/internal/repository"
	"pagado/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// Ledger is the external transaction store.
type Ledger interface {
	PostTransaction(ctx context.Context, owner string, tx *models.CommittedTransaction) error
	QueryTransactions(ctx context.Context, owner, periodKey string) ([]models.LedgerEntry, error)
}

// Committer appends resolved drafts to the ledger at most once per draft.
type Committer struct {
	ledger          Ledger
	journal         repository.CommitJournal
	defaultCurrency string
	inflight        singleflight.Group
	logger          *zap.Logger
	now             func() time.Time
}

func NewCommitter(ledger Ledger, journal repository.CommitJournal, defaultCurrency string, logger *zap.Logger) *Committer {
	return &Committer{
		ledger:          ledger,
		journal:         journal,
		defaultCurrency: defaultCurrency,
		logger:          logger,
		now:             time.Now,
	}
}

// IdempotencyKey derives a stable key from the draft identity and its
// resolved fields.
func IdempotencyKey(userID string, d *models.Draft) string {
	fields := []string{
		d.ID.String(),
		userID,
		string(d.Type),
		d.Amount.StringFixed(2),
		d.Category,
		d.Account,
		d.PaymentMethod,
		d.Currency,
		d.Description,
	}
	sum := blake2b.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Commit posts the draft to the owner's ledger. The draft is never modified;
// on failure the caller keeps it for a retry. A key that was already
// committed returns the journaled result without a second append.
func (c *Committer) Commit(ctx context.Context, userID string, draft *models.Draft, profile *models.UserProfile) (*models.CommittedTransaction, error) {
	if draft == nil {
		return nil, fmt.Errorf("%w: no draft to commit", ErrCommit)
	}
	if _, ok := stateForDraft(draft).(models.ReadyToCommit); !ok {
		return nil, fmt.Errorf("%w: draft is not fully resolved", ErrCommit)
	}

	tx := c.transactionFor(draft)
	tx.IdempotencyKey = IdempotencyKey(userID, draft)

	v, err, _ := c.inflight.Do(tx.IdempotencyKey, func() (interface{}, error) {
		return c.commitOnce(ctx, userID, profile.Email, tx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CommittedTransaction), nil
}

func (c *Committer) commitOnce(ctx context.Context, userID, owner string, tx *models.CommittedTransaction) (*models.CommittedTransaction, error) {
	prev, ok, err := c.journal.Lookup(ctx, tx.IdempotencyKey)
	if err != nil {
		c.logger.Warn("Commit journal lookup failed", logger.User(userID), zap.Error(err))
	}
	if ok {
		c.logger.Info("Draft already committed, skipping ledger append",
			logger.User(userID),
			zap.String("key", tx.IdempotencyKey[:12]),
		)
		return prev, nil
	}

	if err := c.ledger.PostTransaction(ctx, owner, tx); err != nil {
		c.logger.Error("Failed to post transaction", logger.User(userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	tx.CommittedAt = c.now()

	if err := c.journal.Record(ctx, userID, tx); err != nil {
		c.logger.Warn("Failed to journal committed transaction", logger.User(userID), zap.Error(err))
	}

	c.logger.Info("Transaction committed",
		logger.User(userID),
		zap.String("type", string(tx.Type)),
		zap.String("amount", tx.Amount.String()),
		zap.String("category", tx.Category),
	)
	return tx, nil
}

func (c *Committer) transactionFor(d *models.Draft) *models.CommittedTransaction {
	tx := &models.CommittedTransaction{
		Description: strings.TrimSpace(d.Description),
		Type:        d.Type,
		Category:    d.Category,
		Amount:      d.Amount,
		Date:        c.now(),
		Currency:    d.Currency,
		Account:     d.Account,
		Method:      d.PaymentMethod,
	}
	if tx.Description == "" {
		tx.Description = d.Type.Label() + " registrado por IA"
	}
	if tx.Currency == "" {
		tx.Currency = c.defaultCurrency
	}
	return tx
}

// LastTransaction returns the most recent ledger entry of txType in the
// current month, or nil when there is none.
func (c *Committer) LastTransaction(ctx context.Context, profile *models.UserProfile, txType models.TransactionType) (*models.LedgerEntry, error) {
	entries, err := c.ledger.QueryTransactions(ctx, profile.Email, c.now().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	for i := range entries {
		if entries[i].Type == txType {
			return &entries[i], nil
		}
	}
	return nil, nil
}
