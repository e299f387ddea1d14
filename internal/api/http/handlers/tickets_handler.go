package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerdesk/ledgerdesk/internal/api/dto"
	"github.com/ledgerdesk/ledgerdesk/internal/auth"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/service"
	apperrors "github.com/ledgerdesk/ledgerdesk/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints for every role.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("title, description required", nil)
	}

	result, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Attachment:  req.Attachment,
	})
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if result.Receipt.Outcome == ledger.OutcomePending {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": submissionResponse(result)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	filter, err := parseListQuery(c)
	if err != nil {
		return err
	}
	records, err := h.service.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(records))
	for _, rec := range records {
		items = append(items, dto.NewTicketSummary(rec))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id. An incomplete record is returned with 202 so
// clients keep polling.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	rec, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if errors.Is(err, domain.ErrIncomplete) && rec != nil {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.NewTicketDetail(rec)})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(rec)})
}

// RequestTransition POST /tickets/:id/transitions.
func (h *TicketsHandler) RequestTransition(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !req.Action.IsTransition() {
		return apperrors.NewValidationError("unknown action", map[string]any{"action": req.Action})
	}

	result, err := h.service.RequestTransition(c.UserContext(), actor, c.Params("id"), service.TransitionInput{
		Action:         req.Action,
		Assignee:       req.Assignee,
		ExpectedStatus: domain.TicketStatus(strings.ToUpper(string(req.ExpectedStatus))),
	})
	if err != nil {
		return err
	}
	return c.Status(submissionStatus(result.Receipt)).JSON(fiber.Map{"data": submissionResponse(result)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Content) == "" {
		return apperrors.NewValidationError("content required", nil)
	}
	result, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Content)
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if result.Receipt.Outcome == ledger.OutcomePending {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": submissionResponse(result)})
}

// PermittedActions GET /tickets/:id/actions.
func (h *TicketsHandler) PermittedActions(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	actions, rec, err := h.service.PermittedActions(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ActionsResponse{
		TicketID: rec.ID,
		Status:   rec.Status,
		Actions:  actions,
	}})
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthenticated("authentication required")
	}
	return actor, nil
}

func parseListQuery(c *fiber.Ctx) (service.ListFilter, error) {
	filter := service.ListFilter{
		Assignee:          strings.TrimSpace(c.Query("assignee")),
		Creator:           strings.TrimSpace(c.Query("creator")),
		Search:            strings.TrimSpace(c.Query("q")),
		Mine:              c.QueryBool("mine", false),
		IncludeIncomplete: c.QueryBool("include_incomplete", false),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !status.Valid() {
				return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	return filter, nil
}

func submissionStatus(r ledger.Receipt) int {
	if r.Outcome == ledger.OutcomePending {
		return fiber.StatusAccepted
	}
	return fiber.StatusOK
}

func submissionResponse(result service.SubmissionResult) dto.SubmissionResponse {
	return dto.SubmissionResponse{
		Receipt: dto.NewReceipt(result.Receipt),
		Ticket:  dto.NewTicketDetail(result.Record),
	}
}
