package models

type Modality string

const (
	ModalityText     Modality = "text"
	ModalityImage    Modality = "image"
	ModalityVoice    Modality = "voice"
	ModalityDocument Modality = "document"
)

func (m Modality) IsMedia() bool {
	return m == ModalityImage || m == ModalityVoice || m == ModalityDocument
}

// Media references an attachment on the messaging platform. Data is filled
// once the bytes are downloaded.
type Media struct {
	ID       string
	MIMEType string
	Filename string
	Data     []byte
}

// Event is one inbound user message.
type Event struct {
	MessageID string
	UserID    string
	Modality  Modality
	Text      string
	ReplyID   string // id of an interactive list/button reply
	Media     *Media
}

type Intent string

const (
	IntentExpense          Intent = "expense"
	IntentIncome           Intent = "income"
	IntentQueryLastExpense Intent = "query_last_expense"
	IntentQueryLastIncome  Intent = "query_last_income"
	IntentUnknown          Intent = "unknown"
)

// Candidate is the raw, unvalidated output of the extraction model.
// Empty strings mean the model returned null.
type Candidate struct {
	Intent        Intent
	Amount        string
	Category      string
	Description   string
	Currency      string
	Account       string
	PaymentMethod string
	Date          string
}
