package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"schoolrecords_backend/internals/configs"
	"schoolrecords_backend/internals/middlewares/logger"
)

// SetupMiddlewares memasang middleware global: recovery → request log → CORS → limiter
func SetupMiddlewares(app *fiber.App, cfg configs.Config, log *zap.Logger) {
	app.Use(RecoveryMiddleware(log))
	app.Use(logger.LoggerMiddleware(log))
	app.Use(CorsMiddleware(cfg.CORSOrigins))
	app.Use(GlobalRateLimiter(cfg.RateLimit))
}
