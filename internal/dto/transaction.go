package dto

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// TransactionRequest is the ledger append body. The ledger expects amount as
// a JSON number.
type TransactionRequest struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
	Amount      json.Number `json:"amount"`
	Date        string      `json:"date"`
	Currency    string      `json:"currency"`
	Account     string      `json:"account"`
	Method      string      `json:"method"`
}

type TransactionResponse struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Currency    string          `json:"currency"`
	Account     string          `json:"account"`
	Method      string          `json:"method"`
}

type TransactionListResponse struct {
	FormattedTransactions []TransactionResponse `json:"formattedTransactions"`
}
