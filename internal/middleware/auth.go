package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/auth"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/config"
)

const (
	CtxTelegramUserID = "telegram_user_id"
	CtxModerator      = "moderator"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxTelegramUserID, claims.TelegramUserID)
		c.Locals(CtxModerator, claims.Moderator)

		return c.Next()
	}
}

func GetTelegramUserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(CtxTelegramUserID).(int64)
	return id
}

func IsModerator(c *fiber.Ctx) bool {
	m, _ := c.Locals(CtxModerator).(bool)
	return m
}

// AdminMiddleware restricts a route to configured admin telegram IDs.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsAdmin(GetTelegramUserID(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}

// ModeratorMiddleware allows moderators and admins through.
func ModeratorMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsModerator(c) && !cfg.IsAdmin(GetTelegramUserID(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "moderator access required"})
		}
		return c.Next()
	}
}
