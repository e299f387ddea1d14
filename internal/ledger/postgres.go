package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// Postgres is a ledger backed by two tables: current ticket state and an
// append-only event log. Transitions lock the ticket row and are
// conditioned on the expected status.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres instantiates the gateway.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{pool: pool, logger: logger}
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrLedgerUnavailable, op, err)
}

func parseTicketID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (p *Postgres) ReadTicket(ctx context.Context, id string) (domain.Ticket, error) {
	key, ok := parseTicketID(id)
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	const query = `SELECT status, creator, assignee, created_at, seq FROM ledger_tickets WHERE id=$1`
	t, err := scanTicket(p.pool.QueryRow(ctx, query, key), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, unavailable("read ticket", err)
	}
	return t, nil
}

func scanTicket(row pgx.Row, id string) (domain.Ticket, error) {
	var (
		statusIdx int16
		t         domain.Ticket
	)
	if err := row.Scan(&statusIdx, &t.Creator, &t.Assignee, &t.CreatedAt, &t.Sequence); err != nil {
		return domain.Ticket{}, err
	}
	status, err := domain.StatusFromIndex(int(statusIdx))
	if err != nil {
		return domain.Ticket{}, err
	}
	t.ID = id
	t.Status = status
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (p *Postgres) ReadEvents(ctx context.Context, id string, since int64) ([]domain.Event, error) {
	key, ok := parseTicketID(id)
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	const query = `
        SELECT seq, tx_ref::text, kind, actor, block_time, payload
        FROM ledger_events WHERE ticket_id=$1 AND seq > $2
        ORDER BY seq`
	rows, err := p.pool.Query(ctx, query, key, since)
	if err != nil {
		return nil, unavailable("read events", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			ev    domain.Event
			txRef string
			kind  string
			raw   []byte
		)
		if err := rows.Scan(&ev.Sequence, &txRef, &kind, &ev.Actor, &ev.Timestamp, &raw); err != nil {
			return nil, unavailable("scan event", err)
		}
		ev.ID = EventID(txRef)
		ev.TicketID = id
		ev.Kind = domain.EventKind(kind)
		ev.Timestamp = ev.Timestamp.UTC()
		payload, err := DecodePayload(ev.Kind, raw)
		if err != nil {
			p.logger.Warn("skipping undecodable ledger event",
				zap.String("ticket_id", id),
				zap.Int64("seq", ev.Sequence),
				zap.Error(err))
			continue
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read events", err)
	}
	return out, nil
}

func (p *Postgres) ListTicketIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM ledger_tickets ORDER BY id`)
	if err != nil {
		return nil, unavailable("list tickets", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list tickets", err)
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tickets", err)
	}
	return ids, nil
}

func (p *Postgres) CreateTicket(ctx context.Context, req NewTicket) (Receipt, error) {
	created := domain.CreatedPayload{
		Title:          req.Title,
		DescriptionRef: req.DescriptionRef,
		AttachmentRef:  req.AttachmentRef,
	}
	payload, err := EncodePayload(created)
	if err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		var id int64
		const insert = `
            INSERT INTO ledger_tickets (status, creator, seq)
            VALUES ($1, $2, $3)
            RETURNING id`
		if err := tx.QueryRow(ctx, insert, domain.TicketStatusOpen.Index(), req.Creator, seq).Scan(&id); err != nil {
			return err
		}
		receipt, err = appendEvent(ctx, tx, seq, id, req.Creator, created, payload)
		return err
	})
	if err != nil {
		return Receipt{}, unavailable("create ticket", err)
	}
	return receipt, nil
}

func (p *Postgres) AddComment(ctx context.Context, req NewComment) (Receipt, error) {
	key, ok := parseTicketID(req.TicketID)
	if !ok {
		return Receipt{Outcome: OutcomeRejected, TicketID: req.TicketID, Reason: domain.ErrTicketNotFound}, nil
	}
	comment := domain.CommentAddedPayload{CommentID: req.CommentID, ContentRef: req.ContentRef}
	payload, err := EncodePayload(comment)
	if err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		// The row lock orders this write's seq and block time after any
		// concurrent write to the same ticket.
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM ledger_tickets WHERE id=$1 FOR UPDATE`, key).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			receipt = Receipt{Outcome: OutcomeRejected, TicketID: req.TicketID, Reason: domain.ErrTicketNotFound}
			return nil
		}
		if err != nil {
			return err
		}
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE ledger_tickets SET seq=$1 WHERE id=$2`, seq, key); err != nil {
			return err
		}
		receipt, err = appendEvent(ctx, tx, seq, key, req.Author, comment, payload)
		return err
	})
	if err != nil {
		return Receipt{}, unavailable("add comment", err)
	}
	return receipt, nil
}

func (p *Postgres) SubmitTransition(ctx context.Context, sub Submission) (Receipt, error) {
	key, ok := parseTicketID(sub.TicketID)
	if !ok {
		return Receipt{Outcome: OutcomeRejected, TicketID: sub.TicketID, Reason: domain.ErrTicketNotFound}, nil
	}

	var receipt Receipt
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		const lock = `SELECT status, creator, assignee, created_at, seq FROM ledger_tickets WHERE id=$1 FOR UPDATE`
		current, err := scanTicket(tx.QueryRow(ctx, lock, key), sub.TicketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				receipt = Receipt{Outcome: OutcomeRejected, TicketID: sub.TicketID, Reason: domain.ErrTicketNotFound}
				return nil
			}
			return err
		}
		edge, payload, err := planTransition(current, sub)
		if err != nil {
			receipt = Receipt{Outcome: OutcomeRejected, TicketID: sub.TicketID, Reason: err}
			return nil
		}
		encoded, err := EncodePayload(payload)
		if err != nil {
			return err
		}
		next := applyEdge(current, edge, sub.Assignee)

		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		const update = `
            UPDATE ledger_tickets SET status=$1, assignee=$2, seq=$3
            WHERE id=$4 AND status=$5`
		cmd, err := tx.Exec(ctx, update, next.Status.Index(), next.Assignee, seq, key, sub.ExpectedStatus.Index())
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			receipt = Receipt{Outcome: OutcomeRejected, TicketID: sub.TicketID, Reason: domain.ErrStaleState}
			return nil
		}
		receipt, err = appendEvent(ctx, tx, seq, key, sub.Actor, payload, encoded)
		return err
	})
	if err != nil {
		return Receipt{}, unavailable("submit transition", err)
	}
	return receipt, nil
}

func nextSeq(ctx context.Context, tx pgx.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRow(ctx, `SELECT nextval('ledger_event_seq')`).Scan(&seq)
	return seq, err
}

// appendEvent stamps the event with the wall clock at insert time, which
// plays the role of block time. Callers hold the ticket row lock, and the
// stamp never precedes the ticket's previous event, so (block_time, seq)
// order matches seq order within a ticket.
func appendEvent(ctx context.Context, tx pgx.Tx, seq, ticketID int64, actor string, payload domain.Payload, encoded []byte) (Receipt, error) {
	txRef := uuid.NewString()
	const insert = `
        INSERT INTO ledger_events (seq, tx_ref, ticket_id, kind, actor, block_time, payload)
        VALUES ($1,$2,$3,$4,$5,
            GREATEST(clock_timestamp(),
                COALESCE((SELECT MAX(block_time) FROM ledger_events WHERE ticket_id=$3), '-infinity')),
            $6)
        RETURNING block_time`
	ev := domain.Event{
		ID:       EventID(txRef),
		TicketID: strconv.FormatInt(ticketID, 10),
		Kind:     payload.Kind(),
		Actor:    actor,
		Sequence: seq,
		Payload:  payload,
	}
	if err := tx.QueryRow(ctx, insert, seq, txRef, ticketID, string(ev.Kind), actor, encoded).Scan(&ev.Timestamp); err != nil {
		return Receipt{}, err
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return Receipt{
		Outcome:  OutcomeAccepted,
		TicketID: ev.TicketID,
		EventRef: txRef,
		Sequence: seq,
		Event:    &ev,
	}, nil
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
