package service

import (
	"context"
	"fmt"

	"pagado/pkg/config"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiService answers extraction prompts with Gemini, including image,
// audio and PDF attachments sent inline.
type GeminiService struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ ExtractionModel = (*GeminiService)(nil)

func NewGeminiService(ctx context.Context, cfg *config.GeminiConfig, logger *zap.Logger) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	logger.Info("Using Gemini model", zap.String("model", cfg.Model))

	return &GeminiService{
		client: client,
		model:  cfg.Model,
		logger: logger,
	}, nil
}

func (s *GeminiService) Name() string { return "gemini" }

func (s *GeminiService) SupportsMedia() bool { return true }

func (s *GeminiService) Generate(ctx context.Context, prompt string, attachment *Attachment) (string, error) {
	parts := []*genai.Part{
		{Text: extractionSystemInstruction + "\n\n" + prompt},
	}
	if attachment != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: attachment.MIMEType,
				Data:     attachment.Data,
			},
		})
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: parts,
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}
