package api

import (
	"pagado/docs"
	"pagado/internal/api/handlers"
	"pagado/pkg/config"
	"pagado/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

func SetupRouter(
	webhookHandler *handlers.WebhookHandler,
	cfg *config.Config,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept," + middleware.SignatureHeader,
	}))
	app.Use(logger.New())

	// Importing docs registers the swagger spec.
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", webhookHandler.Health)

	webhook := app.Group("/webhook")
	webhook.Get("", webhookHandler.Verify)
	webhook.Post("",
		middleware.RateLimit(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst, appLogger),
		middleware.WebhookSignature(cfg.WhatsApp.AppSecret, appLogger),
		webhookHandler.Receive,
	)

	return app
}
