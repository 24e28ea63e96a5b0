package handlers

import (
	"encoding/json"
	"time"

	"pagado/internal/dto"
	"pagado/internal/models"
	"pagado/internal/service"
	"pagado/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// EventDispatcher accepts inbound events for asynchronous handling.
type EventDispatcher interface {
	Dispatch(ev models.Event)
}

type WebhookHandler struct {
	dispatcher  EventDispatcher
	verifyToken string
	seen        *cache.Cache
	logger      *zap.Logger
}

func NewWebhookHandler(dispatcher EventDispatcher, verifyToken string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:  dispatcher,
		verifyToken: verifyToken,
		seen:        cache.New(10*time.Minute, 5*time.Minute),
		logger:      logger,
	}
}

// Verify godoc
// @Summary Webhook verification
// @Description Answers the Meta subscription handshake
// @Tags webhook
// @Produce plain
// @Param hub.mode query string true "Must be subscribe"
// @Param hub.verify_token query string true "Configured verify token"
// @Param hub.challenge query string true "Challenge to echo"
// @Success 200 {string} string
// @Failure 403 {object} map[string]string
// @Router /webhook [get]
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.logger.Warn("Webhook verification rejected", zap.String("mode", mode), zap.String("ip", c.IP()))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Verification failed",
		})
	}

	h.logger.Info("Webhook verified")
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// Receive godoc
// @Summary Receive messages
// @Description Accepts a WhatsApp Cloud API delivery and queues its messages
// @Tags webhook
// @Accept json
// @Produce json
// @Param X-Hub-Signature-256 header string false "sha256=<hmac of body>"
// @Param payload body dto.WebhookPayload true "Webhook delivery"
// @Success 200 {object} dto.WebhookAck
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /webhook [post]
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var payload dto.WebhookPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	accepted := 0
	for _, ev := range service.ParseWebhook(&payload) {
		if ev.MessageID != "" {
			if err := h.seen.Add(ev.MessageID, struct{}{}, cache.DefaultExpiration); err != nil {
				h.logger.Debug("Duplicate delivery dropped", zap.String("message_id", ev.MessageID))
				continue
			}
		}
		h.logger.Info("Message received",
			logger.User(ev.UserID),
			zap.String("message_id", ev.MessageID),
			zap.String("modality", string(ev.Modality)),
		)
		h.dispatcher.Dispatch(ev)
		accepted++
	}

	return c.JSON(dto.WebhookAck{Status: "ok", Accepted: accepted})
}

// Health godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *WebhookHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
