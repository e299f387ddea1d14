package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgerdesk/ledgerdesk/internal/api/dto"
	"github.com/ledgerdesk/ledgerdesk/internal/service"
	apperrors "github.com/ledgerdesk/ledgerdesk/pkg/util/errorutil"
)

// AdminHandler exposes manager-only maintenance endpoints.
type AdminHandler struct {
	service *service.TicketService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(ticketService *service.TicketService) *AdminHandler {
	return &AdminHandler{service: ticketService}
}

// SetRole PUT /admin/roles/:address.
func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.RoleUpdateRequest
	if err := c.BodyParser(&req); err != nil || req.Role == "" {
		return apperrors.NewValidationError("role required", nil)
	}
	address, role, err := h.service.SetRole(c.UserContext(), actor, c.Params("address"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RoleResponse{Address: address, Role: role}})
}
