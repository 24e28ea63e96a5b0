package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeExpense TransactionType = "expense"
	TransactionTypeIncome  TransactionType = "income"
)

func (t TransactionType) Valid() bool {
	return t == TransactionTypeExpense || t == TransactionTypeIncome
}

// Label is the Spanish noun used in user-facing messages.
func (t TransactionType) Label() string {
	if t == TransactionTypeIncome {
		return "Ingreso"
	}
	return "Gasto"
}

// CommittedTransaction is what the ledger accepted for a draft.
type CommittedTransaction struct {
	Description    string
	Type           TransactionType
	Category       string
	Amount         decimal.Decimal
	Date           time.Time
	Currency       string
	Account        string
	Method         string
	IdempotencyKey string
	CommittedAt    time.Time
}

// LedgerEntry is a transaction as reported back by a ledger query.
type LedgerEntry struct {
	ID          string
	Description string
	Type        TransactionType
	Category    string
	Amount      decimal.Decimal
	Date        time.Time
	Currency    string
	Account     string
	Method      string
}
