package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/dto"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/repositories"
)

type AuditHandler struct {
	audit *repositories.AuditRepo
	log   *zap.Logger
}

func NewAuditHandler(audit *repositories.AuditRepo, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, log: log}
}

func (h *AuditHandler) Query(c *fiber.Ctx) error {
	var f repositories.AuditFilter

	if v := c.Query("actor_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.ActorID = &id
		}
	}
	if v := c.Query("action"); v != "" {
		f.Action = &v
	}
	if v := c.Query("deal_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.DealID = &id
		}
	}
	if v := c.Query("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = &t
		}
	}
	if v := c.Query("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Until = &t
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}

	entries, err := h.audit.Query(c.Context(), f)
	if err != nil {
		h.log.Error("audit query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to query audit log"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
