package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/dto"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/middleware"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/services"
)

type GroupHandler struct {
	pool *services.GroupPool
	log  *zap.Logger
}

func NewGroupHandler(pool *services.GroupPool, log *zap.Logger) *GroupHandler {
	return &GroupHandler{pool: pool, log: log}
}

func (h *GroupHandler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.pool.List(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: groups})
}

// ResetGroup is the admin escape hatch for a stuck group: force it back
// to available regardless of its current status.
func (h *GroupHandler) ResetGroup(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid group id"})
	}

	if err := h.pool.ResetGroup(c.Context(), id, middleware.GetTelegramUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// Reclaim triggers one reclamation sweep immediately instead of waiting
// for the worker's next tick.
func (h *GroupHandler) Reclaim(c *fiber.Ctx) error {
	n, err := h.pool.ReclaimExpired(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"reclaimed": n}})
}
