package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

var ErrNoText = errors.New("no text found in document")

// OCRService pulls the text layer out of PDF documents.
type OCRService struct {
	logger *zap.Logger
}

func NewOCRService(logger *zap.Logger) *OCRService {
	return &OCRService{logger: logger}
}

// ExtractPDFText returns the concatenated text of every page. Scanned PDFs
// without a text layer yield ErrNoText.
func (s *OCRService) ExtractPDFText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			s.logger.Warn("Failed to extract text from page", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n")
		}
	}

	text := cleanText(textBuilder.String())
	if text == "" {
		return "", ErrNoText
	}

	s.logger.Debug("PDF text extracted using go-fitz",
		zap.Int("pages", doc.NumPage()),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}
