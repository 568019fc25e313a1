package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/dto"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/repositories"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/services"
)

type StatsHandler struct {
	pool  *services.GroupPool
	deals *repositories.DealRepo
	log   *zap.Logger
}

func NewStatsHandler(pool *services.GroupPool, deals *repositories.DealRepo, log *zap.Logger) *StatsHandler {
	return &StatsHandler{pool: pool, deals: deals, log: log}
}

func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	groups, err := h.pool.List(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	counts, volume, err := h.deals.CountByStatus(c.Context())
	if err != nil {
		h.log.Error("deal stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to load stats"})
	}

	resp := dto.StatsResponse{
		GroupsTotal:    len(groups),
		TotalVolumeUSD: volume,
	}
	for _, g := range groups {
		switch g.Status {
		case models.GroupStatusAvailable:
			resp.GroupsAvailable++
		case models.GroupStatusCooldown:
			resp.GroupsCooldown++
		default:
			resp.GroupsOccupied++
		}
	}
	for _, status := range models.ActiveDealStatuses {
		resp.ActiveDeals += counts[status]
	}
	resp.CompletedDeals = counts[models.DealStatusCompleted]
	resp.DisputedDeals = counts[models.DealStatusDisputed]

	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}
