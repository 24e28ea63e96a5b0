package service

import (
	"fmt"
	"strings"

	"pagado/internal/models"
	"pagado/pkg/logger"

	"go.uber.org/zap"
)

// Normalized is a candidate reconciled against the user's catalog.
type Normalized struct {
	Draft              *models.Draft
	NeedsAccount       bool
	NeedsPaymentMethod bool
}

// Normalizer reconciles extracted candidates with the catalog. Category,
// account and payment method all use the same policy: exact match, then a
// case-insensitive match; anything else is nulled.
type Normalizer struct {
	defaultCurrency string
	logger          *zap.Logger
}

func NewNormalizer(defaultCurrency string, logger *zap.Logger) *Normalizer {
	return &Normalizer{defaultCurrency: defaultCurrency, logger: logger}
}

// Normalize turns a candidate for an expense or income into a draft. It fails
// with ErrValidation when the type, a positive amount or a known category is
// missing; unknown accounts and payment methods only mark the draft as needing
// selection.
func (n *Normalizer) Normalize(userID string, c *models.Candidate, profile *models.UserProfile) (*Normalized, error) {
	txType := models.TransactionType(c.Intent)
	if !txType.Valid() {
		return nil, fmt.Errorf("%w: intent %q is not a transaction", ErrValidation, c.Intent)
	}

	amount, err := ParseAmount(c.Amount)
	if err != nil {
		return nil, err
	}

	draft := models.NewDraft(txType, models.OriginAI)
	draft.Amount = amount
	draft.Description = strings.TrimSpace(c.Description)
	draft.Currency = NormalizeCurrency(c.Currency, n.defaultCurrency)

	if i := matchName(profile.CategoryNames(), c.Category); i >= 0 {
		draft.Category = profile.Categories[i].Name
	} else {
		if c.Category != "" {
			n.logger.Info("Dropping unknown category", logger.User(userID), zap.String("category", c.Category))
		}
		return nil, fmt.Errorf("%w: category missing", ErrValidation)
	}

	if i := matchName(profile.AccountTitles(), c.Account); i >= 0 {
		draft.Account = profile.Accounts[i].Title
		draft.AccountID = profile.Accounts[i].ID
	} else if c.Account != "" {
		n.logger.Info("Dropping unknown account", logger.User(userID), zap.String("account", c.Account))
	}

	if c.PaymentMethod != "" {
		if draft.AccountID == "" {
			draft.PaymentMethodHint = c.PaymentMethod
		} else if m, ok := resolveMethod(profile.MethodsForAccount(draft.AccountID), c.PaymentMethod); ok {
			draft.PaymentMethod = m.Title
		} else {
			n.logger.Info("Dropping payment method outside the account",
				logger.User(userID),
				zap.String("payment_method", c.PaymentMethod),
				zap.String("account", draft.Account),
			)
		}
	}

	return &Normalized{
		Draft:              draft,
		NeedsAccount:       draft.NeedsAccount(),
		NeedsPaymentMethod: draft.NeedsPaymentMethod(),
	}, nil
}

// resolveMethod applies the catalog policy to methods already filtered by account.
func resolveMethod(methods []models.PaymentMethod, name string) (models.PaymentMethod, bool) {
	titles := make([]string, len(methods))
	for i, m := range methods {
		titles[i] = m.Title
	}
	if i := matchName(titles, name); i >= 0 {
		return methods[i], true
	}
	for i, m := range methods {
		titles[i] = m.DisplayTitle()
	}
	if i := matchName(titles, name); i >= 0 {
		return methods[i], true
	}
	return models.PaymentMethod{}, false
}
