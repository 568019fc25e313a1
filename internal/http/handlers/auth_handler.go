package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/auth"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/config"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/dto"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/repositories"
)

type AuthHandler struct {
	cfg   *config.Config
	users *repositories.UserRepo
	log   *zap.Logger
}

func NewAuthHandler(cfg *config.Config, users *repositories.UserRepo, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, log: log}
}

// AdminLogin exchanges the shared admin API key for a short-lived JWT.
// Only configured admins and flagged moderators get tokens.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.cfg.AdminAPIKey)) != 1 {
		h.log.Warn("admin login with bad api key", zap.Int64("telegram_user_id", req.TelegramUserID))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid credentials"})
	}

	moderator := false
	if !h.cfg.IsAdmin(req.TelegramUserID) {
		u, err := h.users.GetByTelegramID(c.Context(), req.TelegramUserID)
		if err != nil || u == nil || !u.IsModerator {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not an admin or moderator"})
		}
		moderator = true
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, req.TelegramUserID, moderator, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("jwt generation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "token generation failed"})
	}

	return c.JSON(dto.AuthResponse{Token: token})
}
