package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/dto"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/middleware"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/repositories"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/services"
)

type DealHandler struct {
	engine *services.DealEngine
	deals  *repositories.DealRepo
	log    *zap.Logger
}

func NewDealHandler(engine *services.DealEngine, deals *repositories.DealRepo, log *zap.Logger) *DealHandler {
	return &DealHandler{engine: engine, deals: deals, log: log}
}

func (h *DealHandler) CreateDeal(c *fiber.Ctx) error {
	var req dto.CreateDealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	deal, group, err := h.engine.CreateDeal(c.Context(), req.CreatorUserID, req.Role)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"deal":  deal,
		"group": group,
	}})
}

func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// GetEscrowInfo is the payment view: where to send funds and how many
// confirmations the bot will wait for before announcing the deposit.
func (h *DealHandler) GetEscrowInfo(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	if deal.EscrowAddress == nil || deal.Network == nil {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "escrow not generated yet"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.EscrowInfoResponse{
		EscrowCode:            deal.EscrowCode,
		Network:               *deal.Network,
		EscrowAddress:         *deal.EscrowAddress,
		Status:                deal.Status,
		RequiredConfirmations: 3,
	}})
}

func (h *DealHandler) ListDeals(c *fiber.Ctx) error {
	filter := repositories.DealFilter{Limit: 20}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("network"); v != "" {
		filter.Network = &v
	}
	if v := c.Query("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.UserID = &id
		}
	}

	deals, err := h.deals.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list deals", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to list deals"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deals})
}

func (h *DealHandler) SetAddress(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req dto.SetAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	updated, err := h.engine.SetParticipantAddress(c.Context(), deal.ID, req.UserID, req.Role, req.Address, req.Network)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) GenerateEscrow(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req dto.GenerateEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	updated, err := h.engine.GenerateEscrow(c.Context(), deal.ID, req.ActorUserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) CompleteDeal(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	updated, err := h.engine.CompleteDeal(c.Context(), deal.ID, middleware.GetTelegramUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) CancelDeal(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	updated, err := h.engine.CancelDeal(c.Context(), deal.ID, middleware.GetTelegramUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) DisputeDeal(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req dto.DisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	actorID := req.ActorUserID
	if actorID == 0 {
		actorID = middleware.GetTelegramUserID(c)
	}

	updated, err := h.engine.Dispute(c.Context(), deal.ID, actorID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

// FreezeDeal toggles the moderation freeze flag. Admin/moderator only.
func (h *DealHandler) FreezeDeal(c *fiber.Ctx) error {
	deal, err := h.resolveDeal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req dto.FreezeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	updated, err := h.engine.SetFrozen(c.Context(), deal.ID, middleware.GetTelegramUserID(c), req.Frozen)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

// resolveDeal accepts either a deal UUID or an ESCROW-XXX999 code in
// the :id parameter.
func (h *DealHandler) resolveDeal(c *fiber.Ctx) (*models.Deal, error) {
	param := c.Params("id")
	if id, err := uuid.Parse(param); err == nil {
		return h.engine.GetDeal(c.Context(), id)
	}
	return h.engine.GetDealByCode(c.Context(), param)
}
