package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pagado/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CommitJournal remembers which idempotency keys already reached the ledger.
type CommitJournal interface {
	Lookup(ctx context.Context, key string) (*models.CommittedTransaction, bool, error)
	Record(ctx context.Context, userID string, tx *models.CommittedTransaction) error
}

var (
	_ CommitJournal = (*MemoryJournal)(nil)
	_ CommitJournal = (*JournalRepository)(nil)
)

// MemoryJournal keeps committed keys in process memory for retention.
type MemoryJournal struct {
	entries *cache.Cache
}

func NewMemoryJournal(retention time.Duration) *MemoryJournal {
	return &MemoryJournal{entries: cache.New(retention, retention/2)}
}

func (j *MemoryJournal) Lookup(_ context.Context, key string) (*models.CommittedTransaction, bool, error) {
	v, ok := j.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	tx := v.(models.CommittedTransaction)
	return &tx, true, nil
}

func (j *MemoryJournal) Record(_ context.Context, _ string, tx *models.CommittedTransaction) error {
	// Add keeps the first record when two writers race on the same key.
	_ = j.entries.Add(tx.IdempotencyKey, *tx, cache.DefaultExpiration)
	return nil
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS commit_journal (
	idempotency_key TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	type            TEXT NOT NULL,
	description     TEXT NOT NULL,
	category        TEXT NOT NULL,
	amount          NUMERIC(18, 2) NOT NULL,
	currency        TEXT NOT NULL,
	account         TEXT NOT NULL,
	method          TEXT NOT NULL,
	transaction_date TIMESTAMPTZ NOT NULL,
	committed_at    TIMESTAMPTZ NOT NULL
)`

// JournalRepository is the Postgres-backed commit journal.
type JournalRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewJournalRepository(db *pgxpool.Pool, logger *zap.Logger) *JournalRepository {
	return &JournalRepository{
		db:     db,
		logger: logger,
	}
}

func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, journalSchema); err != nil {
		return fmt.Errorf("failed to create commit_journal: %w", err)
	}
	return nil
}

func (r *JournalRepository) Lookup(ctx context.Context, key string) (*models.CommittedTransaction, bool, error) {
	sql, args, err := journalLookupQuery(key).ToSql()
	if err != nil {
		return nil, false, err
	}

	var (
		tx     models.CommittedTransaction
		txType string
		amount string
	)
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&tx.IdempotencyKey, &txType, &tx.Description, &tx.Category, &amount,
		&tx.Currency, &tx.Account, &tx.Method, &tx.Date, &tx.CommittedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up journal entry: %w", err)
	}

	tx.Type = models.TransactionType(txType)
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, false, fmt.Errorf("failed to parse journaled amount: %w", err)
	}
	return &tx, true, nil
}

func (r *JournalRepository) Record(ctx context.Context, userID string, tx *models.CommittedTransaction) error {
	sql, args, err := journalInsertQuery(userID, tx).ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("Journal entry already present", zap.String("key", tx.IdempotencyKey))
	}
	return nil
}

func journalLookupQuery(key string) squirrel.SelectBuilder {
	return squirrel.Select("idempotency_key", "type", "description", "category", "amount::text",
		"currency", "account", "method", "transaction_date", "committed_at").
		From("commit_journal").
		Where(squirrel.Eq{"idempotency_key": key}).
		PlaceholderFormat(squirrel.Dollar)
}

func journalInsertQuery(userID string, tx *models.CommittedTransaction) squirrel.InsertBuilder {
	return squirrel.Insert("commit_journal").
		Columns("idempotency_key", "user_id", "type", "description", "category", "amount",
			"currency", "account", "method", "transaction_date", "committed_at").
		Values(tx.IdempotencyKey, userID, string(tx.Type), tx.Description, tx.Category,
			squirrel.Expr("?::numeric", tx.Amount.String()),
			tx.Currency, tx.Account, tx.Method, tx.Date, tx.CommittedAt).
		Suffix("ON CONFLICT (idempotency_key) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar)
}
