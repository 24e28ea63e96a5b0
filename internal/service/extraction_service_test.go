package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pagado/internal/models"
	"pagado/internal/repository"

	"go.uber.org/zap"
)

type MockExtractionModel struct {
	GenerateFunc func(ctx context.Context, prompt string, attachment *Attachment) (string, error)
	Media        bool
}

func (m *MockExtractionModel) Name() string        { return "mock" }
func (m *MockExtractionModel) SupportsMedia() bool { return m.Media }
func (m *MockExtractionModel) Generate(ctx context.Context, prompt string, attachment *Attachment) (string, error) {
	return m.GenerateFunc(ctx, prompt, attachment)
}

type MockPDFTextExtractor struct {
	ExtractPDFTextFunc func(data []byte) (string, error)
}

func (m *MockPDFTextExtractor) ExtractPDFText(data []byte) (string, error) {
	return m.ExtractPDFTextFunc(data)
}

type MockAuditSink struct {
	rows []*repository.ExtractionAudit
}

func (m *MockAuditSink) Record(ctx context.Context, row *repository.ExtractionAudit) error {
	m.rows = append(m.rows, row)
	return nil
}

func newTestExtractor(model ExtractionModel, pdf PDFTextExtractor, audit repository.AuditSink) *ExtractionService {
	if pdf == nil {
		pdf = &MockPDFTextExtractor{ExtractPDFTextFunc: func([]byte) (string, error) { return "", ErrNoText }}
	}
	return NewExtractionService(model, pdf, audit, "ARS", zap.NewNop())
}

func TestExtractText(t *testing.T) {
	var gotPrompt string
	model := &MockExtractionModel{GenerateFunc: func(ctx context.Context, prompt string, attachment *Attachment) (string, error) {
		gotPrompt = prompt
		if attachment != nil {
			t.Error("text extraction must not send an attachment")
		}
		return "```json\n{\"type\":\"expense\",\"amount\":5000,\"category\":\"Comida\",\"account\":null,\"paymentMethod\":null,\"description\":\"almuerzo\",\"currency\":null}\n```", nil
	}}
	audit := &MockAuditSink{}

	c, err := newTestExtractor(model, nil, audit).Extract(context.Background(), "5491100000000",
		ExtractionInput{Modality: models.ModalityText, Text: "gasté 5000 en comida"}, testProfile())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if c.Intent != models.IntentExpense || c.Amount != "5000" || c.Category != "Comida" || c.Account != "" {
		t.Errorf("candidate = %+v", c)
	}
	for _, want := range []string{"gasté 5000 en comida", `"Banco Nación"`, `"Comida"`, `"Visa"`, `"ARS"`} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt is missing %s", want)
		}
	}
	if len(audit.rows) != 1 || !audit.rows[0].OK || audit.rows[0].User != "*********0000" {
		t.Errorf("audit rows = %+v", audit.rows)
	}
}

func TestExtractFailuresAreExtractionErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		input ExtractionInput
		media bool
	}{
		{"transport error", "", errors.New("timeout"), ExtractionInput{Modality: models.ModalityText, Text: "hola"}, false},
		{"empty response", "   ", nil, ExtractionInput{Modality: models.ModalityText, Text: "hola"}, false},
		{"malformed response", "no sé qué decir", nil, ExtractionInput{Modality: models.ModalityText, Text: "hola"}, false},
		{"broken json", `{"type": "expense", "amount": }`, nil, ExtractionInput{Modality: models.ModalityText, Text: "hola"}, false},
		{"empty text", "{}", nil, ExtractionInput{Modality: models.ModalityText, Text: " "}, false},
		{"image on text-only model", "{}", nil, ExtractionInput{Modality: models.ModalityImage, Media: &models.Media{MIMEType: "image/jpeg", Data: []byte{1}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &MockExtractionModel{Media: tt.media, GenerateFunc: func(context.Context, string, *Attachment) (string, error) {
				return tt.reply, tt.err
			}}
			_, err := newTestExtractor(model, nil, repository.NopAuditSink{}).Extract(context.Background(), "u1", tt.input, testProfile())
			if !errors.Is(err, ErrExtraction) {
				t.Errorf("Extract() error = %v, want ErrExtraction", err)
			}
		})
	}
}

func TestExtractImageDefaultsToExpense(t *testing.T) {
	model := &MockExtractionModel{Media: true, GenerateFunc: func(ctx context.Context, prompt string, attachment *Attachment) (string, error) {
		if attachment == nil || attachment.MIMEType != "image/jpeg" {
			t.Errorf("attachment = %+v", attachment)
		}
		return `Aquí está: {"amount": "1.234,50", "category": "comida"}`, nil
	}}

	c, err := newTestExtractor(model, nil, repository.NopAuditSink{}).Extract(context.Background(), "u1",
		ExtractionInput{Modality: models.ModalityImage, Media: &models.Media{MIMEType: "image/jpeg", Data: []byte{0xff}}}, testProfile())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if c.Intent != models.IntentExpense || c.Amount != "1.234,50" {
		t.Errorf("candidate = %+v", c)
	}
}

func TestExtractDocument(t *testing.T) {
	pdf := &MockPDFTextExtractor{ExtractPDFTextFunc: func([]byte) (string, error) { return "TOTAL $ 999", nil }}
	model := &MockExtractionModel{GenerateFunc: func(ctx context.Context, prompt string, attachment *Attachment) (string, error) {
		if attachment != nil {
			t.Error("PDF with text should be sent as text")
		}
		if !strings.Contains(prompt, "TOTAL $ 999") {
			t.Error("prompt should carry the PDF text")
		}
		return `{"type":"expense","amount":999,"category":"Comida"}`, nil
	}}

	_, err := newTestExtractor(model, pdf, repository.NopAuditSink{}).Extract(context.Background(), "u1",
		ExtractionInput{Modality: models.ModalityDocument, Media: &models.Media{MIMEType: "application/pdf", Data: []byte("%PDF")}}, testProfile())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
}

func TestExtractScannedDocumentFallsBackToAttachment(t *testing.T) {
	model := &MockExtractionModel{Media: true, GenerateFunc: func(ctx context.Context, prompt string, attachment *Attachment) (string, error) {
		if attachment == nil || attachment.MIMEType != "application/pdf" {
			t.Errorf("attachment = %+v", attachment)
		}
		return `{"type":"expense","amount":10,"category":"Comida"}`, nil
	}}

	_, err := newTestExtractor(model, nil, repository.NopAuditSink{}).Extract(context.Background(), "u1",
		ExtractionInput{Modality: models.ModalityDocument, Media: &models.Media{MIMEType: "application/pdf", Data: []byte("%PDF")}}, testProfile())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
}

func TestParseCandidateUnknownIntent(t *testing.T) {
	c, err := parseCandidate(`{"type":"transfer"}`, models.ModalityText)
	if err != nil {
		t.Fatalf("parseCandidate() error = %v", err)
	}
	if c.Intent != models.IntentUnknown {
		t.Errorf("intent = %q, want unknown", c.Intent)
	}
}

func TestVoiceMIMEType(t *testing.T) {
	if got := voiceMIMEType("audio/ogg; codecs=opus"); got != "audio/ogg" {
		t.Errorf("voiceMIMEType() = %q", got)
	}
	if got := voiceMIMEType(""); got != "audio/ogg" {
		t.Errorf("voiceMIMEType(\"\") = %q", got)
	}
}
