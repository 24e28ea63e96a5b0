package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pagado/internal/dto"
	"pagado/internal/models"
	"pagado/pkg/config"
	"pagado/pkg/logger"

	"go.uber.org/zap"
)

const (
	maxMediaBytes     = 16 << 20
	maxListButtonLen  = 20
	maxListHeaderLen  = 60
	maxSectionNameLen = 24
)

// Messenger is the outbound side of the messaging platform.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
	SendList(ctx context.Context, to string, list *models.ListMessage) error
	DownloadMedia(ctx context.Context, media *models.Media) (*models.Media, error)
}

// Send delivers one outgoing message through m.
func Send(ctx context.Context, m Messenger, to string, msg models.OutgoingMessage) error {
	if msg.List != nil {
		return m.SendList(ctx, to, msg.List)
	}
	return m.SendText(ctx, to, msg.Text)
}

// WhatsAppService talks to the WhatsApp Cloud API.
type WhatsAppService struct {
	apiURL        string
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewWhatsAppService(cfg *config.WhatsAppConfig, logger *zap.Logger) *WhatsAppService {
	return &WhatsAppService{
		apiURL:        strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}
}

func (s *WhatsAppService) SendText(ctx context.Context, to, text string) error {
	return s.send(ctx, dto.OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &dto.OutboundText{Body: text},
	})
}

// SendList sends an interactive list. Titles are cut to the platform limits.
func (s *WhatsAppService) SendList(ctx context.Context, to string, list *models.ListMessage) error {
	interactive := &dto.OutboundInteractive{
		Type:   "list",
		Body:   dto.OutboundBody{Text: truncate(list.Body, maxListBodySize)},
		Action: dto.OutboundAction{Button: truncate(list.Button, maxListButtonLen)},
	}
	if list.Header != "" {
		interactive.Header = &dto.OutboundHeader{Type: "text", Text: truncate(list.Header, maxListHeaderLen)}
	}
	for _, section := range list.Sections {
		out := dto.OutboundSection{Title: truncate(section.Title, maxSectionNameLen)}
		for _, row := range section.Rows {
			out.Rows = append(out.Rows, dto.OutboundRow{
				ID:          row.ID,
				Title:       truncate(row.Title, maxRowTitleLen),
				Description: truncate(row.Description, 72),
			})
		}
		interactive.Action.Sections = append(interactive.Action.Sections, out)
	}

	return s.send(ctx, dto.OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      interactive,
	})
}

func (s *WhatsAppService) send(ctx context.Context, msg dto.OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/"+s.phoneNumberID+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if err := graphError(resp); err != nil {
		s.logger.Error("WhatsApp send failed", logger.User(msg.To), zap.String("type", msg.Type), zap.Error(err))
		return err
	}
	return nil
}

// DownloadMedia resolves the media id to its URL and fetches the bytes.
func (s *WhatsAppService) DownloadMedia(ctx context.Context, media *models.Media) (*models.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/"+media.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media: %w", err)
	}
	defer resp.Body.Close()
	if err := graphError(resp); err != nil {
		return nil, err
	}

	var info dto.MediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode media info: %w", err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("media %s has no download url", media.ID)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	dl, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer dl.Body.Close()
	if err := graphError(dl); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(dl.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("media %s exceeds %d bytes", media.ID, maxMediaBytes)
	}

	out := *media
	out.Data = data
	if out.MIMEType == "" {
		out.MIMEType = info.MIMEType
	}

	s.logger.Debug("Media downloaded", zap.String("media_id", media.ID), zap.Int("bytes", len(data)))
	return &out, nil
}

func graphError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ge dto.GraphError
	if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
		return fmt.Errorf("graph api error %d (code %d): %s", resp.StatusCode, ge.Error.Code, ge.Error.Message)
	}
	return fmt.Errorf("graph api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// ParseWebhook flattens a webhook delivery into events. Unsupported message
// types (stickers, locations, reactions) are skipped.
func ParseWebhook(payload *dto.WebhookPayload) []models.Event {
	var events []models.Event
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				if ev, ok := eventFromMessage(msg); ok {
					events = append(events, ev)
				}
			}
		}
	}
	return events
}

func eventFromMessage(msg dto.WebhookMessage) (models.Event, bool) {
	ev := models.Event{MessageID: msg.ID, UserID: msg.From}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return ev, false
		}
		ev.Modality = models.ModalityText
		ev.Text = msg.Text.Body
	case "interactive":
		if msg.Interactive == nil {
			return ev, false
		}
		choice := msg.Interactive.ListReply
		if choice == nil {
			choice = msg.Interactive.ButtonReply
		}
		if choice == nil {
			return ev, false
		}
		ev.Modality = models.ModalityText
		ev.Text = choice.Title
		ev.ReplyID = choice.ID
	case "button":
		if msg.Button == nil {
			return ev, false
		}
		ev.Modality = models.ModalityText
		ev.Text = msg.Button.Text
		ev.ReplyID = msg.Button.Payload
	case "image":
		return mediaEvent(ev, models.ModalityImage, msg.Image)
	case "audio":
		return mediaEvent(ev, models.ModalityVoice, msg.Audio)
	case "document":
		return mediaEvent(ev, models.ModalityDocument, msg.Document)
	default:
		return ev, false
	}
	return ev, true
}

func mediaEvent(ev models.Event, modality models.Modality, m *dto.WebhookMedia) (models.Event, bool) {
	if m == nil || m.ID == "" {
		return ev, false
	}
	ev.Modality = modality
	ev.Text = m.Caption
	ev.Media = &models.Media{ID: m.ID, MIMEType: m.MIMEType, Filename: m.Filename}
	return ev, true
}
