package dto

import "encoding/json"

// ExtractionResult is the JSON object the extraction model is asked to return.
// Amount is kept raw because models emit both numbers and strings.
type ExtractionResult struct {
	Type          string          `json:"type"`
	Amount        json.RawMessage `json:"amount"`
	Category      *string         `json:"category"`
	Account       *string         `json:"account"`
	PaymentMethod *string         `json:"paymentMethod"`
	Description   *string         `json:"description"`
	Currency      *string         `json:"currency"`
	Date          *string         `json:"date"`
}
