package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Origin string

const (
	OriginAI     Origin = "ai"
	OriginManual Origin = "manual"
)

// Draft is a transaction under construction. Empty strings mean unresolved.
type Draft struct {
	ID            uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	Category      string
	Description   string
	Currency      string
	Account       string
	AccountID     string
	PaymentMethod string
	Origin        Origin

	// PaymentMethodHint is a method name the user mentioned before the
	// account was known; it is retried once the account is chosen.
	PaymentMethodHint string
}

func NewDraft(txType TransactionType, origin Origin) *Draft {
	return &Draft{
		ID:     uuid.New(),
		Type:   txType,
		Origin: origin,
	}
}

func (d *Draft) NeedsAccount() bool {
	return d.Account == "" && d.Type.Valid()
}

func (d *Draft) NeedsPaymentMethod() bool {
	return d.PaymentMethod == "" && d.Type.Valid()
}

func (d *Draft) HasAmount() bool {
	return d.Amount.IsPositive()
}

// Clone returns a copy that can be modified without touching the original.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
