package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ledgerdesk/ledgerdesk/internal/access"
	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
)

var (
	userA    = access.MustNormalize("0x1111111111111111111111111111111111111111")
	agentB   = access.MustNormalize("0x2222222222222222222222222222222222222222")
	agentC   = access.MustNormalize("0x3333333333333333333333333333333333333333")
	managerM = access.MustNormalize("0x4444444444444444444444444444444444444444")
)

func actor(addr string, role domain.Role) domain.Actor {
	return domain.Actor{Address: addr, Role: role}
}

func view(status domain.TicketStatus, assignee string) domain.Ticket {
	return domain.Ticket{ID: "1", Status: status, Creator: userA, Assignee: assignee}
}

func newEngine(selfAssign bool, gw ledger.Gateway) *Engine {
	return NewEngine(access.NewPolicy(selfAssign), gw, observability.NewMetrics(), nil)
}

func TestEvaluate_StateTableCompleteness(t *testing.T) {
	t.Parallel()

	if n := len(domain.Edges()); n != 5 {
		t.Fatalf("expected 5 state table rows, got %d", n)
	}
	engine := newEngine(true, nil)
	mgr := actor(managerM, domain.RoleManager)
	for _, status := range domain.AllStatuses() {
		for _, action := range domain.TransitionActions {
			_, inTable := domain.LookupEdge(status, action)
			assignee := ""
			if status == domain.TicketStatusInProgress {
				assignee = agentB
			}
			_, err := engine.Evaluate(mgr, view(status, assignee), Request{Action: action, Assignee: agentC})
			if inTable {
				if err != nil {
					t.Fatalf("%s on %s: expected allowed, got %v", action, status, err)
				}
				continue
			}
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Fatalf("%s on %s: expected invalid transition, got %v", action, status, err)
			}
		}
	}
}

func TestEvaluate_UserIsAlwaysUnauthorized(t *testing.T) {
	t.Parallel()

	engine := newEngine(true, nil)
	user := actor(userA, domain.RoleUser)
	for _, status := range domain.AllStatuses() {
		for _, action := range []domain.Action{domain.ActionAssign, domain.ActionResolve, domain.ActionClose} {
			// Even a user who is somehow the assignee cannot transition.
			_, err := engine.Evaluate(user, view(status, userA), Request{Action: action, Assignee: userA})
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("%s on %s: expected unauthorized, got %v", action, status, err)
			}
			var rejection *domain.RejectionError
			if !errors.As(err, &rejection) || rejection.Action != action || rejection.Status != status {
				t.Fatalf("expected rejection to name action and status, got %v", err)
			}
		}
	}
}

func TestEvaluate_Guards(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		selfAssign bool
		actor      domain.Actor
		view       domain.Ticket
		req        Request
		want       error
		assignee   string
	}{
		{"manager assigns agent", true, actor(managerM, domain.RoleManager), view(domain.TicketStatusOpen, ""), Request{Action: domain.ActionAssign, Assignee: agentB}, nil, agentB},
		{"manager assign needs target", true, actor(managerM, domain.RoleManager), view(domain.TicketStatusOpen, ""), Request{Action: domain.ActionAssign}, domain.ErrInvalidInput, ""},
		{"agent self assigns", true, actor(agentB, domain.RoleAgent), view(domain.TicketStatusOpen, ""), Request{Action: domain.ActionAssign}, nil, agentB},
		{"agent cannot assign others", true, actor(agentB, domain.RoleAgent), view(domain.TicketStatusOpen, ""), Request{Action: domain.ActionAssign, Assignee: agentC}, domain.ErrUnauthorized, ""},
		{"self assign disabled", false, actor(agentB, domain.RoleAgent), view(domain.TicketStatusOpen, ""), Request{Action: domain.ActionAssign}, domain.ErrUnauthorized, ""},
		{"assignee resolves", true, actor(agentB, domain.RoleAgent), view(domain.TicketStatusInProgress, agentB), Request{Action: domain.ActionResolve}, nil, ""},
		{"other agent cannot resolve", true, actor(agentC, domain.RoleAgent), view(domain.TicketStatusInProgress, agentB), Request{Action: domain.ActionResolve}, domain.ErrUnauthorized, ""},
		{"manager resolves any", true, actor(managerM, domain.RoleManager), view(domain.TicketStatusInProgress, agentB), Request{Action: domain.ActionResolve}, nil, ""},
		{"agent cannot close", true, actor(agentB, domain.RoleAgent), view(domain.TicketStatusResolved, agentB), Request{Action: domain.ActionClose}, domain.ErrUnauthorized, ""},
		{"agent cannot reopen", true, actor(agentB, domain.RoleAgent), view(domain.TicketStatusClosed, agentB), Request{Action: domain.ActionReopen}, domain.ErrUnauthorized, ""},
		{"reassign to same agent", true, actor(managerM, domain.RoleManager), view(domain.TicketStatusInProgress, agentB), Request{Action: domain.ActionReassign, Assignee: agentB}, domain.ErrInvalidInput, ""},
		{"reassign to zero address", true, actor(managerM, domain.RoleManager), view(domain.TicketStatusInProgress, agentB), Request{Action: domain.ActionReassign, Assignee: domain.ZeroAddress}, domain.ErrInvalidInput, ""},
		{"unknown role fails closed", true, actor(managerM, domain.Role("ROOT")), view(domain.TicketStatusResolved, ""), Request{Action: domain.ActionClose}, domain.ErrUnauthorized, ""},
		{"comment is not a transition", true, actor(managerM, domain.RoleManager), view(domain.TicketStatusOpen, ""), Request{Action: domain.ActionComment}, domain.ErrInvalidTransition, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plan, err := newEngine(tc.selfAssign, nil).Evaluate(tc.actor, tc.view, tc.req)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected allowed, got %v", err)
				}
				if plan.Assignee != tc.assignee {
					t.Fatalf("expected assignee %q, got %q", tc.assignee, plan.Assignee)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestExecute_ConcurrentAssignOneStale(t *testing.T) {
	t.Parallel()

	gw := ledger.NewMemory(ledger.WithMemoryClock(clock.NewFake(time.Now())))
	created, err := gw.CreateTicket(context.Background(), ledger.NewTicket{Creator: userA, Title: "Race", DescriptionRef: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	engine := newEngine(true, gw)
	snapshot, _ := gw.ReadTicket(context.Background(), created.TicketID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	receipts := make([]ledger.Receipt, 2)
	for i, target := range []string{agentB, agentC} {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			receipts[i], errs[i] = engine.Execute(context.Background(), actor(managerM, domain.RoleManager), snapshot, Request{Action: domain.ActionAssign, Assignee: target})
		}(i, target)
	}
	wg.Wait()

	accepted, stale := 0, 0
	for i := range errs {
		switch {
		case errs[i] == nil && receipts[i].Accepted():
			accepted++
		case errors.Is(errs[i], domain.ErrStaleState):
			stale++
		}
	}
	if accepted != 1 || stale != 1 {
		t.Fatalf("expected one accepted and one stale, got errs=%v", errs)
	}
}

func TestExecute_ReportsPending(t *testing.T) {
	t.Parallel()

	gw := ledger.NewMemory(ledger.WithDeferredConfirmation())
	created, _ := gw.CreateTicket(context.Background(), ledger.NewTicket{Creator: userA, Title: "Slow", DescriptionRef: "x"})
	snapshot, _ := gw.ReadTicket(context.Background(), created.TicketID)

	receipt, err := newEngine(true, gw).Execute(context.Background(), actor(managerM, domain.RoleManager), snapshot, Request{Action: domain.ActionAssign, Assignee: agentB})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if receipt.Outcome != ledger.OutcomePending {
		t.Fatalf("expected pending, got %s", receipt.Outcome)
	}
}

func TestPermittedActions(t *testing.T) {
	t.Parallel()

	engine := newEngine(true, nil)
	got := engine.PermittedActions(actor(agentB, domain.RoleAgent), view(domain.TicketStatusInProgress, agentB))
	if len(got) != 2 || got[0] != domain.ActionComment || got[1] != domain.ActionResolve {
		t.Fatalf("unexpected actions %v", got)
	}
	if got := engine.PermittedActions(actor(userA, domain.Role("")), view(domain.TicketStatusOpen, "")); len(got) != 0 {
		t.Fatalf("expected empty set for unknown role, got %v", got)
	}
}
