// Package workflow validates ticket transitions and submits them to the
// ledger conditioned on the caller's view of the current status.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/access"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
)

// Request is a transition a caller wants to make.
type Request struct {
	Action domain.Action
	// Assignee is the target of assign and reassign. An Agent self-assigning
	// may leave it empty.
	Assignee string
}

// Plan is a validated transition.
type Plan struct {
	Edge     domain.Edge
	Assignee string
}

// Engine checks requests against the policy and the state table.
type Engine struct {
	policy  access.Policy
	gateway ledger.Gateway
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(policy access.Policy, gateway ledger.Gateway, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{policy: policy, gateway: gateway, metrics: metrics, logger: logger}
}

// Evaluate decides whether actor may apply req to a ticket as seen in view.
// A role that can never perform the action is Unauthorized whatever the
// status; otherwise a missing state table edge is InvalidTransition and a
// failed ticket-specific guard is Unauthorized.
func (e *Engine) Evaluate(actor domain.Actor, view domain.Ticket, req Request) (Plan, error) {
	if !req.Action.IsTransition() {
		return Plan{}, domain.Reject(domain.ErrInvalidTransition, req.Action, view.Status, "not a workflow transition")
	}
	if !e.policy.Capabilities(actor.Role).Has(req.Action) {
		return Plan{}, domain.Reject(domain.ErrUnauthorized, req.Action, view.Status, fmt.Sprintf("role %q may not %s", actor.Role, req.Action))
	}
	edge, ok := domain.LookupEdge(view.Status, req.Action)
	if !ok {
		return Plan{}, domain.Reject(domain.ErrInvalidTransition, req.Action, view.Status, "")
	}

	subject := access.Subject{
		Role:       actor.Role,
		Status:     view.Status,
		IsAssignee: domain.SameAddress(view.Assignee, actor.Address),
		IsCreator:  domain.SameAddress(view.Creator, actor.Address),
	}
	if !e.policy.Allows(subject, req.Action) {
		return Plan{}, domain.Reject(domain.ErrUnauthorized, req.Action, view.Status, "actor is not the assignee")
	}

	plan := Plan{Edge: edge}
	if !edge.SetsAssignee {
		return plan, nil
	}

	target := req.Assignee
	if target == "" && actor.Role != domain.RoleManager {
		target = actor.Address
	}
	normalized, err := access.NormalizeAddress(target)
	if err != nil || normalized == domain.ZeroAddress {
		return Plan{}, domain.Reject(domain.ErrInvalidInput, req.Action, view.Status, "assignee must be a valid non-zero address")
	}
	if actor.Role != domain.RoleManager && !domain.SameAddress(normalized, actor.Address) {
		return Plan{}, domain.Reject(domain.ErrUnauthorized, req.Action, view.Status, "agents may only assign tickets to themselves")
	}
	if domain.SameAddress(normalized, view.Assignee) {
		return Plan{}, domain.Reject(domain.ErrInvalidInput, req.Action, view.Status, "ticket is already assigned to that address")
	}
	plan.Assignee = normalized
	return plan, nil
}

// Execute evaluates req and submits it to the ledger conditioned on
// view.Status. A rejected receipt is returned together with a
// *domain.RejectionError naming the reason.
func (e *Engine) Execute(ctx context.Context, actor domain.Actor, view domain.Ticket, req Request) (ledger.Receipt, error) {
	plan, err := e.Evaluate(actor, view, req)
	if err != nil {
		e.record(req.Action, err)
		e.logger.Info("transition rejected",
			zap.String("ticket_id", view.ID),
			zap.String("action", string(req.Action)),
			zap.String("actor", actor.Address),
			zap.Error(err))
		return ledger.Receipt{Outcome: ledger.OutcomeRejected, TicketID: view.ID, Reason: errors.Unwrap(err)}, err
	}

	receipt, err := e.gateway.SubmitTransition(ctx, ledger.Submission{
		TicketID:       view.ID,
		Action:         req.Action,
		Actor:          actor.Address,
		Assignee:       plan.Assignee,
		ExpectedStatus: view.Status,
	})
	if err != nil {
		e.record(req.Action, err)
		return ledger.Receipt{}, err
	}

	switch receipt.Outcome {
	case ledger.OutcomeRejected:
		reason := receipt.Reason
		if reason == nil {
			reason = domain.ErrStaleState
		}
		rejection := domain.Reject(reason, req.Action, view.Status, "ledger refused the write")
		e.record(req.Action, rejection)
		e.logger.Info("ledger rejected transition",
			zap.String("ticket_id", view.ID),
			zap.String("action", string(req.Action)),
			zap.Error(rejection))
		return receipt, rejection
	default:
		e.metrics.RecordTransition(string(req.Action), string(receipt.Outcome))
		return receipt, nil
	}
}

// PermittedActions lists what actor may request on view, transitions and
// commenting included.
func (e *Engine) PermittedActions(actor domain.Actor, view domain.Ticket) []domain.Action {
	return e.policy.PermittedActions(access.Subject{
		Role:       actor.Role,
		Status:     view.Status,
		IsAssignee: domain.SameAddress(view.Assignee, actor.Address),
		IsCreator:  domain.SameAddress(view.Creator, actor.Address),
	}).Sorted()
}

func (e *Engine) record(action domain.Action, err error) {
	outcome := "error"
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		outcome = "invalid_transition"
	case errors.Is(err, domain.ErrUnauthorized):
		outcome = "unauthorized"
	case errors.Is(err, domain.ErrStaleState):
		outcome = "stale_state"
	case errors.Is(err, domain.ErrInvalidInput):
		outcome = "invalid_input"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		outcome = "ledger_unavailable"
	}
	e.metrics.RecordTransition(string(action), outcome)
}
