package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pagado/internal/dto"
	"pagado/internal/models"
	"pagado/internal/repository"
	"pagado/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PDFTextExtractor reads the text layer of a PDF.
type PDFTextExtractor interface {
	ExtractPDFText(data []byte) (string, error)
}

type ExtractionInput struct {
	Modality models.Modality
	Text     string
	Media    *models.Media
}

// ExtractionService turns one inbound message into a candidate transaction.
// Every failure it returns wraps ErrExtraction.
type ExtractionService struct {
	model           ExtractionModel
	pdf             PDFTextExtractor
	audit           repository.AuditSink
	defaultCurrency string
	logger          *zap.Logger
	now             func() time.Time
}

func NewExtractionService(
	model ExtractionModel,
	pdf PDFTextExtractor,
	audit repository.AuditSink,
	defaultCurrency string,
	logger *zap.Logger,
) *ExtractionService {
	return &ExtractionService{
		model:           model,
		pdf:             pdf,
		audit:           audit,
		defaultCurrency: defaultCurrency,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *ExtractionService) Extract(ctx context.Context, userID string, in ExtractionInput, profile *models.UserProfile) (*models.Candidate, error) {
	prompt, attachment, err := s.buildRequest(in, profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	raw, err := s.model.Generate(ctx, prompt, attachment)
	if err != nil {
		s.record(ctx, userID, in.Modality, "", false)
		s.logger.Warn("Extraction model call failed",
			logger.User(userID),
			zap.String("provider", s.model.Name()),
			zap.String("modality", string(in.Modality)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	candidate, err := parseCandidate(raw, in.Modality)
	s.record(ctx, userID, in.Modality, raw, err == nil)
	if err != nil {
		s.logger.Warn("Extraction output rejected",
			logger.User(userID),
			zap.String("provider", s.model.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	s.logger.Info("Extraction completed",
		logger.User(userID),
		zap.String("provider", s.model.Name()),
		zap.String("modality", string(in.Modality)),
		zap.String("intent", string(candidate.Intent)),
	)
	return candidate, nil
}

func (s *ExtractionService) buildRequest(in ExtractionInput, profile *models.UserProfile) (string, *Attachment, error) {
	var (
		task       string
		attachment *Attachment
	)

	switch in.Modality {
	case models.ModalityText:
		if strings.TrimSpace(in.Text) == "" {
			return "", nil, errors.New("empty text")
		}
		task = "Mensaje del usuario:\n" + in.Text
	case models.ModalityImage:
		if in.Media == nil || len(in.Media.Data) == 0 {
			return "", nil, errors.New("missing image data")
		}
		task = "La imagen adjunta es un ticket, factura o comprobante. Extrae el monto total y la categoría del gasto. Salvo que el comprobante indique un cobro, el tipo es \"expense\"."
		if in.Text != "" {
			task += "\nComentario del usuario: " + in.Text
		}
		attachment = &Attachment{MIMEType: in.Media.MIMEType, Data: in.Media.Data}
	case models.ModalityVoice:
		if in.Media == nil || len(in.Media.Data) == 0 {
			return "", nil, errors.New("missing audio data")
		}
		task = "El audio adjunto es una nota de voz del usuario. Transcríbela y extrae la transacción que describe."
		attachment = &Attachment{MIMEType: voiceMIMEType(in.Media.MIMEType), Data: in.Media.Data}
	case models.ModalityDocument:
		if in.Media == nil || len(in.Media.Data) == 0 {
			return "", nil, errors.New("missing document data")
		}
		text, err := s.pdf.ExtractPDFText(in.Media.Data)
		switch {
		case err == nil:
			task = "Texto de un documento PDF enviado por el usuario. Extrae el monto total y la categoría del gasto:\n" + text
		case s.model.SupportsMedia():
			task = "El PDF adjunto es un comprobante. Extrae el monto total y la categoría del gasto."
			attachment = &Attachment{MIMEType: "application/pdf", Data: in.Media.Data}
		default:
			return "", nil, fmt.Errorf("document has no text layer: %w", ErrMediaUnsupported)
		}
	default:
		return "", nil, fmt.Errorf("unknown modality %q", in.Modality)
	}

	if attachment != nil && !s.model.SupportsMedia() {
		return "", nil, ErrMediaUnsupported
	}

	return s.catalogContext(profile) + "\n\n" + task, attachment, nil
}

func (s *ExtractionService) catalogContext(profile *models.UserProfile) string {
	categories, _ := json.Marshal(profile.CategoryNames())
	accounts, _ := json.Marshal(profile.AccountTitles())
	methods, _ := json.Marshal(profile.MethodTitles())

	var b strings.Builder
	fmt.Fprintf(&b, "Fecha de hoy: %s\n", s.now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Categorías disponibles: %s\n", categories)
	fmt.Fprintf(&b, "Cuentas disponibles: %s\n", accounts)
	fmt.Fprintf(&b, "Métodos de pago disponibles: %s\n", methods)
	b.WriteString(`
IMPORTANTE:
- Si el usuario dice "gasté", "compré", "pagué" → type: "expense"
- Si el usuario dice "me pagaron", "cobré", "recibí" → type: "income"
- Si pregunta por el "último gasto" → type: "query_last_expense"
- Si pregunta por el "último ingreso" → type: "query_last_income"
- Si no es claro o no es financiero → type: "unknown"
- "category" debe ser una de las categorías disponibles
- "account" y "paymentMethod" SOLO si el usuario los menciona explícitamente y están en la lista; si no, null
`)
	fmt.Fprintf(&b, "- Si no hay moneda, asume %q\n", s.defaultCurrency)
	b.WriteString(`
Devuelve SOLO JSON válido con estas claves:
{"type": "expense" | "income" | "query_last_expense" | "query_last_income" | "unknown", "amount": número o null, "category": string o null, "account": string o null, "paymentMethod": string o null, "description": string o null, "currency": string o null}`)
	return b.String()
}

func (s *ExtractionService) record(ctx context.Context, userID string, modality models.Modality, raw string, ok bool) {
	row := &repository.ExtractionAudit{
		ID:        uuid.NewString(),
		User:      logger.MaskPhone(userID),
		Modality:  string(modality),
		Provider:  s.model.Name(),
		RawOutput: raw,
		OK:        ok,
		CreatedAt: s.now().UTC(),
	}
	if err := s.audit.Record(ctx, row); err != nil {
		s.logger.Warn("Failed to record extraction audit", zap.Error(err))
	}
}

// voiceMIMEType strips codec parameters such as "audio/ogg; codecs=opus".
func voiceMIMEType(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i > 0 {
		return strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return "audio/ogg"
	}
	return mimeType
}

var knownIntents = map[models.Intent]bool{
	models.IntentExpense:          true,
	models.IntentIncome:           true,
	models.IntentQueryLastExpense: true,
	models.IntentQueryLastIncome:  true,
	models.IntentUnknown:          true,
}

// parseCandidate decodes the model's JSON answer, tolerating markdown fences
// and prose around the object.
func parseCandidate(raw string, modality models.Modality) (*models.Candidate, error) {
	content := cleanText(raw)
	if content == "" {
		return nil, errors.New("empty response from model")
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("invalid response format: %s", truncate(content, 200))
	}

	var result dto.ExtractionResult
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	intent := models.Intent(strings.ToLower(strings.TrimSpace(result.Type)))
	if intent == "" && modality.IsMedia() {
		intent = models.IntentExpense
	}
	if !knownIntents[intent] {
		intent = models.IntentUnknown
	}

	return &models.Candidate{
		Intent:        intent,
		Amount:        rawAmount(result.Amount),
		Category:      deref(result.Category),
		Description:   deref(result.Description),
		Currency:      deref(result.Currency),
		Account:       deref(result.Account),
		PaymentMethod: deref(result.PaymentMethod),
		Date:          deref(result.Date),
	}, nil
}

func rawAmount(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
