package ledger

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

type storedEvent struct {
	id       string
	ticketID string
	kind     domain.EventKind
	actor    string
	at       time.Time
	seq      int64
	payload  []byte
}

// Memory is an in-process ledger. All writes go through one mutex, which
// makes it the serialization point that a real ledger would be.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	logger  *zap.Logger
	seq     int64
	nextID  int64
	tickets map[string]domain.Ticket
	events  map[string][]storedEvent
	order   []string

	deferred bool
	queue    []func() Receipt
}

// MemoryOption customizes a Memory ledger.
type MemoryOption func(*Memory)

// WithMemoryClock sets the block time source.
func WithMemoryClock(c clock.Clock) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDeferredConfirmation makes transitions and comments return
// OutcomePending until Mine is called.
func WithDeferredConfirmation() MemoryOption {
	return func(m *Memory) { m.deferred = true }
}

// NewMemory creates an empty ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock:   clock.NewSystem(),
		logger:  zap.NewNop(),
		tickets: make(map[string]domain.Ticket),
		events:  make(map[string][]storedEvent),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) ReadTicket(ctx context.Context, id string) (domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticket{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return t, nil
}

func (m *Memory) ReadEvents(ctx context.Context, id string, since int64) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	stored := append([]storedEvent(nil), m.events[id]...)
	_, known := m.tickets[id]
	m.mu.Unlock()
	if !known {
		return nil, domain.ErrTicketNotFound
	}

	out := make([]domain.Event, 0, len(stored))
	for _, se := range stored {
		if se.seq <= since {
			continue
		}
		payload, err := DecodePayload(se.kind, se.payload)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Event{
			ID:        se.id,
			TicketID:  se.ticketID,
			Kind:      se.kind,
			Actor:     se.actor,
			Timestamp: se.at,
			Sequence:  se.seq,
			Payload:   payload,
		})
	}
	return out, nil
}

func (m *Memory) ListTicketIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...), nil
}

func (m *Memory) CreateTicket(ctx context.Context, req NewTicket) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	payload, err := EncodePayload(domain.CreatedPayload{
		Title:          req.Title,
		DescriptionRef: req.DescriptionRef,
		AttachmentRef:  req.AttachmentRef,
	})
	if err != nil {
		return Receipt{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := strconv.FormatInt(m.nextID, 10)
	now := m.clock.Now()
	t := domain.Ticket{
		ID:        id,
		Status:    domain.TicketStatusOpen,
		Creator:   req.Creator,
		CreatedAt: now,
	}
	m.order = append(m.order, id)
	return m.appendLocked(uuid.NewString(), t, domain.EventCreated, req.Creator, now, payload), nil
}

func (m *Memory) AddComment(ctx context.Context, req NewComment) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	payload, err := EncodePayload(domain.CommentAddedPayload{CommentID: req.CommentID, ContentRef: req.ContentRef})
	if err != nil {
		return Receipt{}, err
	}
	apply := func(txRef string) Receipt {
		t, ok := m.tickets[req.TicketID]
		if !ok {
			return Receipt{Outcome: OutcomeRejected, TicketID: req.TicketID, Reason: domain.ErrTicketNotFound}
		}
		return m.appendLocked(txRef, t, domain.EventCommentAdded, req.Author, m.clock.Now(), payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deferred {
		return m.enqueueLocked(req.TicketID, apply), nil
	}
	return apply(uuid.NewString()), nil
}

func (m *Memory) SubmitTransition(ctx context.Context, sub Submission) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	apply := func(txRef string) Receipt {
		current, ok := m.tickets[sub.TicketID]
		if !ok {
			return Receipt{Outcome: OutcomeRejected, TicketID: sub.TicketID, Reason: domain.ErrTicketNotFound}
		}
		edge, payload, err := planTransition(current, sub)
		if err != nil {
			m.logger.Debug("ledger rejected transition",
				zap.String("ticket_id", sub.TicketID),
				zap.String("action", string(sub.Action)),
				zap.Error(err))
			return Receipt{Outcome: OutcomeRejected, TicketID: sub.TicketID, Reason: err}
		}
		encoded, err := EncodePayload(payload)
		if err != nil {
			return Receipt{Outcome: OutcomeRejected, TicketID: sub.TicketID, Reason: err}
		}
		kind := payload.Kind()
		return m.appendLocked(txRef, applyEdge(current, edge, sub.Assignee), kind, sub.Actor, m.clock.Now(), encoded)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deferred {
		return m.enqueueLocked(sub.TicketID, apply), nil
	}
	return apply(uuid.NewString()), nil
}

// Mine applies every queued write in submission order and returns their
// final receipts. It is a no-op unless WithDeferredConfirmation was set.
func (m *Memory) Mine(ctx context.Context) ([]Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.queue
	m.queue = nil
	out := make([]Receipt, 0, len(queue))
	for _, apply := range queue {
		out = append(out, apply())
	}
	return out, nil
}

// Pending returns the number of unconfirmed writes.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// enqueueLocked mints the transaction reference up front so the pending
// receipt and the later confirmation carry the same EventRef.
func (m *Memory) enqueueLocked(ticketID string, apply func(txRef string) Receipt) Receipt {
	txRef := uuid.NewString()
	m.queue = append(m.queue, func() Receipt {
		receipt := apply(txRef)
		receipt.EventRef = txRef
		return receipt
	})
	return Receipt{Outcome: OutcomePending, TicketID: ticketID, EventRef: txRef}
}

// appendLocked stores the new ticket state and its event atomically.
func (m *Memory) appendLocked(txRef string, t domain.Ticket, kind domain.EventKind, actor string, at time.Time, payload []byte) Receipt {
	m.seq++
	t.Sequence = m.seq
	m.tickets[t.ID] = t
	m.events[t.ID] = append(m.events[t.ID], storedEvent{
		id:       EventID(txRef),
		ticketID: t.ID,
		kind:     kind,
		actor:    actor,
		at:       at,
		seq:      m.seq,
		payload:  payload,
	})
	receipt := Receipt{Outcome: OutcomeAccepted, TicketID: t.ID, EventRef: txRef, Sequence: m.seq}
	if decoded, err := DecodePayload(kind, payload); err == nil {
		receipt.Event = &domain.Event{
			ID:        EventID(txRef),
			TicketID:  t.ID,
			Kind:      kind,
			Actor:     actor,
			Timestamp: at,
			Sequence:  m.seq,
			Payload:   decoded,
		}
	}
	return receipt
}
