package service

import (
	"context"
	"fmt"
	"strings"

	"pagado/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

// Attachment is binary input sent to the extraction model alongside the prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// ExtractionModel is a hosted language model able to answer an extraction prompt.
type ExtractionModel interface {
	Name() string
	SupportsMedia() bool
	Generate(ctx context.Context, prompt string, attachment *Attachment) (string, error)
}

const extractionSystemInstruction = `Eres un asistente que registra movimientos de dinero para una app de finanzas personales.
Tu tarea es leer el mensaje del usuario (texto, foto de un ticket, audio o PDF) y devolver un único objeto JSON.
Nunca inventes cuentas, métodos de pago ni categorías que no estén en las listas que se te den.
Responde SOLO con JSON válido, sin markdown ni texto adicional.`

// LLMService answers extraction prompts with GigaChat. It handles text only.
type LLMService struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	config *config.GigaChatConfig
	logger *zap.Logger
}

var _ ExtractionModel = (*LLMService)(nil)

func NewLLMService(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*LLMService, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = extractionSystemInstruction
	model.Temperature = 0.3

	logger.Info("Using GigaChat model", zap.String("model", cfg.Model))

	return &LLMService{
		client: client,
		model:  model,
		config: cfg,
		logger: logger,
	}, nil
}

func (s *LLMService) Name() string { return "gigachat" }

func (s *LLMService) SupportsMedia() bool { return false }

func (s *LLMService) Generate(ctx context.Context, prompt string, attachment *Attachment) (string, error) {
	if attachment != nil {
		return "", ErrMediaUnsupported
	}

	resp, err := s.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
