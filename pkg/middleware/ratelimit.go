package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func RateLimit(perSecond, burst int, logger *zap.Logger) fiber.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *fiber.Ctx) error {
		if !limiter.Allow() {
			logger.Warn("Rate limit exceeded",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
			})
		}
		return c.Next()
	}
}
