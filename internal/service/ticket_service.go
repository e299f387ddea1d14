package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/access"
	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/directory"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/events"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/reconcile"
	"github.com/ledgerdesk/ledgerdesk/internal/workflow"
)

const (
	maxTitleLength   = 200
	maxCommentLength = 10000
)

// ContentStore uploads ticket content and returns its digest.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// TicketService is the caller-facing API. Every call takes the actor
// explicitly; nothing is read from ambient session state.
type TicketService struct {
	gateway    ledger.Gateway
	content    ContentStore
	reconciler *reconcile.Reconciler
	directory  *directory.Directory
	engine     *workflow.Engine
	policy     access.Policy
	roles      *access.RoleDirectory
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Gateway    ledger.Gateway
	Content    ContentStore
	Reconciler *reconcile.Reconciler
	Directory  *directory.Directory
	Engine     *workflow.Engine
	Policy     access.Policy
	Roles      *access.RoleDirectory
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Attachment  []byte
}

// ListFilter narrows listTickets.
type ListFilter struct {
	Statuses []domain.TicketStatus
	Assignee string
	Creator  string
	// Mine keeps tickets the actor created or is assigned to.
	Mine              bool
	IncludeIncomplete bool
	// Search matches id, title or description, ignoring case.
	Search string
}

// TransitionInput is a transition request from a caller.
type TransitionInput struct {
	Action   domain.Action
	Assignee string
	// ExpectedStatus is the caller's view of the current status. Empty means
	// the freshly reconciled status is used.
	ExpectedStatus domain.TicketStatus
}

// SubmissionResult pairs a ledger receipt with the record after it.
type SubmissionResult struct {
	Receipt ledger.Receipt
	Record  *domain.TicketRecord
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &TicketService{
		gateway:    deps.Gateway,
		content:    deps.Content,
		reconciler: deps.Reconciler,
		directory:  deps.Directory,
		engine:     deps.Engine,
		policy:     deps.Policy,
		roles:      deps.Roles,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		logger:     logger,
	}
}

// CreateTicket stores the content and writes the Created event. Upload
// failures are reported as ContentUnavailable; retrying with the same
// content reuses the same digests.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (SubmissionResult, error) {
	if !s.policy.CanCreate(actor.Role) {
		return SubmissionResult{}, fmt.Errorf("%w: role %q may not create tickets", domain.ErrUnauthorized, actor.Role)
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return SubmissionResult{}, fmt.Errorf("%w: title and description are required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return SubmissionResult{}, fmt.Errorf("%w: title exceeds %d characters", domain.ErrInvalidInput, maxTitleLength)
	}

	descriptionRef, err := s.upload(ctx, []byte(description))
	if err != nil {
		return SubmissionResult{}, err
	}
	var attachmentRef string
	if len(input.Attachment) > 0 {
		if attachmentRef, err = s.upload(ctx, input.Attachment); err != nil {
			return SubmissionResult{}, err
		}
	}

	receipt, err := s.gateway.CreateTicket(ctx, ledger.NewTicket{
		Creator:        actor.Address,
		Title:          title,
		DescriptionRef: descriptionRef,
		AttachmentRef:  attachmentRef,
	})
	if err != nil {
		return SubmissionResult{}, err
	}
	s.publishEvent(ctx, events.EventTicketSubmitted, receipt.TicketID, actor, "", receipt)
	if receipt.Outcome == ledger.OutcomeRejected {
		return SubmissionResult{Receipt: receipt}, fmt.Errorf("create ticket: %w", receipt.Reason)
	}
	return s.afterWrite(ctx, receipt), nil
}

// ListTickets returns cached records visible to actor. Users only see
// tickets they created.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter ListFilter) ([]*domain.TicketRecord, error) {
	if !s.policy.CanCreate(actor.Role) {
		return nil, fmt.Errorf("%w: unknown role", domain.ErrUnauthorized)
	}
	preds := []directory.Predicate{}
	if !filter.IncludeIncomplete {
		preds = append(preds, directory.Complete())
	}
	if actor.Role == domain.RoleUser {
		preds = append(preds, directory.ByCreator(actor.Address))
	}
	if len(filter.Statuses) > 0 {
		preds = append(preds, directory.ByStatus(filter.Statuses...))
	}
	if filter.Assignee != "" {
		preds = append(preds, directory.ByAssignee(filter.Assignee))
	}
	if filter.Creator != "" {
		preds = append(preds, directory.ByCreator(filter.Creator))
	}
	if filter.Mine {
		preds = append(preds, directory.Any(directory.ByCreator(actor.Address), directory.ByAssignee(actor.Address)))
	}
	if filter.Search != "" {
		preds = append(preds, directory.Matching(filter.Search))
	}
	return s.directory.List(directory.All(preds...)), nil
}

// GetTicket reconciles and returns one ticket. An incomplete record is
// returned together with domain.ErrIncomplete so callers can show a
// loading state and retry.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, id string) (*domain.TicketRecord, error) {
	rec, err := s.reconciler.Refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, rec) {
		return nil, fmt.Errorf("%w: ticket %s is not visible to this actor", domain.ErrUnauthorized, id)
	}
	if rec.State == domain.RecordIncomplete {
		return rec, domain.ErrIncomplete
	}
	return rec, nil
}

// RequestTransition validates and submits a workflow transition.
func (s *TicketService) RequestTransition(ctx context.Context, actor domain.Actor, id string, input TransitionInput) (SubmissionResult, error) {
	rec, err := s.reconciler.Refresh(ctx, id)
	if err != nil {
		return SubmissionResult{}, err
	}
	view := viewOf(rec)
	if input.ExpectedStatus != "" {
		if !input.ExpectedStatus.Valid() {
			return SubmissionResult{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, input.ExpectedStatus)
		}
		view.Status = input.ExpectedStatus
	}

	receipt, err := s.engine.Execute(ctx, actor, view, workflow.Request{Action: input.Action, Assignee: input.Assignee})
	s.publishEvent(ctx, events.EventTransitionSubmitted, id, actor, input.Action, receipt)
	if err != nil {
		return SubmissionResult{Receipt: receipt, Record: rec}, err
	}
	if receipt.Outcome == ledger.OutcomePending {
		return SubmissionResult{Receipt: receipt, Record: rec}, nil
	}
	return s.afterWrite(ctx, receipt), nil
}

// AddComment uploads the comment body and appends it to the ticket.
// Comments are allowed in every status.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, id, body string) (SubmissionResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return SubmissionResult{}, fmt.Errorf("%w: comment is empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > maxCommentLength {
		return SubmissionResult{}, fmt.Errorf("%w: comment exceeds %d characters", domain.ErrInvalidInput, maxCommentLength)
	}
	rec, err := s.reconciler.Refresh(ctx, id)
	if err != nil {
		return SubmissionResult{}, err
	}
	subject := subjectOf(actor, rec)
	if !s.policy.Allows(subject, domain.ActionComment) {
		return SubmissionResult{}, domain.Reject(domain.ErrUnauthorized, domain.ActionComment, rec.Status, "only the creator, agents and managers may comment")
	}

	ref, err := s.upload(ctx, []byte(body))
	if err != nil {
		return SubmissionResult{}, err
	}
	receipt, err := s.gateway.AddComment(ctx, ledger.NewComment{
		TicketID:   id,
		Author:     actor.Address,
		CommentID:  uuid.NewString(),
		ContentRef: ref,
	})
	if err != nil {
		return SubmissionResult{}, err
	}
	s.publishEvent(ctx, events.EventCommentSubmitted, id, actor, domain.ActionComment, receipt)
	switch receipt.Outcome {
	case ledger.OutcomeRejected:
		return SubmissionResult{Receipt: receipt, Record: rec}, domain.Reject(receipt.Reason, domain.ActionComment, rec.Status, "ledger refused the write")
	case ledger.OutcomePending:
		return SubmissionResult{Receipt: receipt, Record: rec}, nil
	}
	return s.afterWrite(ctx, receipt), nil
}

// PermittedActions lists what actor may do on the ticket right now.
func (s *TicketService) PermittedActions(ctx context.Context, actor domain.Actor, id string) ([]domain.Action, *domain.TicketRecord, error) {
	rec, err := s.reconciler.Refresh(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !s.canView(actor, rec) {
		return []domain.Action{}, rec, nil
	}
	return s.engine.PermittedActions(actor, viewOf(rec)), rec, nil
}

// Stats counts cached tickets per status. Manager only.
func (s *TicketService) Stats(ctx context.Context, actor domain.Actor) (map[domain.TicketStatus]int, error) {
	if actor.Role != domain.RoleManager {
		return nil, fmt.Errorf("%w: stats are restricted to managers", domain.ErrUnauthorized)
	}
	return s.directory.Stats(), nil
}

// SetRole changes an address's role at runtime. Manager only.
func (s *TicketService) SetRole(ctx context.Context, actor domain.Actor, address string, roleName string) (string, domain.Role, error) {
	if actor.Role != domain.RoleManager {
		return "", "", fmt.Errorf("%w: only managers may change roles", domain.ErrUnauthorized)
	}
	role, ok := domain.ParseRole(roleName)
	if !ok {
		return "", "", fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, roleName)
	}
	normalized, err := access.NormalizeAddress(address)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.roles.SetRole(normalized, role); err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	s.logger.Info("role updated",
		zap.String("address", normalized),
		zap.String("role", string(role)),
		zap.String("by", actor.Address))
	return normalized, role, nil
}

func (s *TicketService) upload(ctx context.Context, data []byte) (string, error) {
	digest, err := s.content.Put(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		s.logger.Warn("content upload failed", zap.String("digest", digest), zap.Error(err))
		return "", fmt.Errorf("%w: upload %s: %v", domain.ErrContentUnavailable, digest, err)
	}
	return digest, nil
}

// afterWrite reconciles the ticket once an accepted write has landed. The
// confirmed event is folded onto the cached record directly; a full
// refresh is only needed when that cannot produce a complete record.
func (s *TicketService) afterWrite(ctx context.Context, receipt ledger.Receipt) SubmissionResult {
	result := SubmissionResult{Receipt: receipt}
	if receipt.Event != nil {
		recs, err := s.reconciler.Ingest(ctx, []domain.Event{*receipt.Event})
		if err == nil && len(recs) == 1 && recs[0].State == domain.RecordComplete {
			result.Record = recs[0]
			return result
		}
	}
	rec, err := s.reconciler.Refresh(ctx, receipt.TicketID)
	if err != nil {
		// The write landed; the background sync will pick the record up.
		s.logger.Warn("reconcile after write failed", zap.String("ticket_id", receipt.TicketID), zap.Error(err))
		return result
	}
	result.Record = rec
	return result
}

func (s *TicketService) canView(actor domain.Actor, rec *domain.TicketRecord) bool {
	switch actor.Role {
	case domain.RoleAgent, domain.RoleManager:
		return true
	case domain.RoleUser:
		return domain.SameAddress(rec.Creator, actor.Address)
	}
	return false
}

func (s *TicketService) publishEvent(ctx context.Context, eventType events.EventType, ticketID string, actor domain.Actor, action domain.Action, receipt ledger.Receipt) {
	if s.dispatcher == nil {
		return
	}
	payload := events.SubmissionPayload{
		Action:   action,
		Outcome:  string(receipt.Outcome),
		EventRef: receipt.EventRef,
	}
	if receipt.Reason != nil {
		payload.Reason = receipt.Reason.Error()
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor.Address,
		Timestamp: s.clock.Now(),
		Payload:   payload,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("event handler failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func viewOf(rec *domain.TicketRecord) domain.Ticket {
	return domain.Ticket{
		ID:        rec.ID,
		Status:    rec.Status,
		Creator:   rec.Creator,
		Assignee:  rec.Assignee,
		CreatedAt: rec.CreatedAt,
		Sequence:  rec.Version,
	}
}

func subjectOf(actor domain.Actor, rec *domain.TicketRecord) access.Subject {
	return access.Subject{
		Role:       actor.Role,
		Status:     rec.Status,
		IsAssignee: domain.SameAddress(rec.Assignee, actor.Address),
		IsCreator:  domain.SameAddress(rec.Creator, actor.Address),
	}
}
