package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/http/dto"
	"github.com/Problemsolver0070/rahu-escrow-bot/internal/services"
)

// respondError translates the service error taxonomy into HTTP status
// codes so clients can react without parsing messages.
func respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	status := fiber.StatusInternalServerError
	switch kind {
	case services.KindValidation:
		status = fiber.StatusBadRequest
	case services.KindNotFound:
		status = fiber.StatusNotFound
	case services.KindState:
		status = fiber.StatusConflict
	case services.KindFrozen:
		status = fiber.StatusLocked
	case services.KindCapacity:
		status = fiber.StatusServiceUnavailable
	case services.KindExternalService:
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error(), Kind: string(kind)})
}
