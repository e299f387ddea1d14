package access

import (
	"testing"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

func TestPolicy_PermittedActions(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(true)

	cases := []struct {
		name    string
		subject Subject
		want    []domain.Action
	}{
		{
			name:    "manager on open ticket",
			subject: Subject{Role: domain.RoleManager, Status: domain.TicketStatusOpen},
			want:    []domain.Action{domain.ActionAssign, domain.ActionComment},
		},
		{
			name:    "manager on in-progress ticket",
			subject: Subject{Role: domain.RoleManager, Status: domain.TicketStatusInProgress},
			want:    []domain.Action{domain.ActionComment, domain.ActionReassign, domain.ActionResolve},
		},
		{
			name:    "manager on closed ticket",
			subject: Subject{Role: domain.RoleManager, Status: domain.TicketStatusClosed},
			want:    []domain.Action{domain.ActionComment, domain.ActionReopen},
		},
		{
			name:    "agent assignee resolves",
			subject: Subject{Role: domain.RoleAgent, Status: domain.TicketStatusInProgress, IsAssignee: true},
			want:    []domain.Action{domain.ActionComment, domain.ActionResolve},
		},
		{
			name:    "agent not assignee",
			subject: Subject{Role: domain.RoleAgent, Status: domain.TicketStatusInProgress},
			want:    []domain.Action{domain.ActionComment},
		},
		{
			name:    "agent self assigns open ticket",
			subject: Subject{Role: domain.RoleAgent, Status: domain.TicketStatusOpen},
			want:    []domain.Action{domain.ActionAssign, domain.ActionComment},
		},
		{
			name:    "creator comments",
			subject: Subject{Role: domain.RoleUser, Status: domain.TicketStatusResolved, IsCreator: true},
			want:    []domain.Action{domain.ActionComment},
		},
		{
			name:    "user on someone else's ticket",
			subject: Subject{Role: domain.RoleUser, Status: domain.TicketStatusOpen},
			want:    nil,
		},
		{
			name:    "unknown role fails closed",
			subject: Subject{Role: domain.Role("ROOT"), Status: domain.TicketStatusOpen, IsCreator: true, IsAssignee: true},
			want:    nil,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := policy.PermittedActions(tc.subject).Sorted()
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestPolicy_SelfAssignDisabled(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(false)
	got := policy.PermittedActions(Subject{Role: domain.RoleAgent, Status: domain.TicketStatusOpen})
	if got.Has(domain.ActionAssign) {
		t.Fatalf("expected assign to be withheld when self-assign is disabled")
	}
}

func TestPolicy_UserNeverTransitions(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(true)
	for _, status := range domain.AllStatuses() {
		for _, flags := range [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}} {
			subject := Subject{Role: domain.RoleUser, Status: status, IsAssignee: flags[0], IsCreator: flags[1]}
			for _, action := range domain.TransitionActions {
				if policy.Allows(subject, action) {
					t.Fatalf("expected user to be denied %s on %s", action, status)
				}
			}
		}
	}
}

func TestPolicy_Deterministic(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(true)
	subject := Subject{Role: domain.RoleManager, Status: domain.TicketStatusResolved}
	first := policy.PermittedActions(subject).Sorted()
	for i := 0; i < 50; i++ {
		again := policy.PermittedActions(subject).Sorted()
		if len(again) != len(first) {
			t.Fatalf("expected stable result, got %v then %v", first, again)
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("expected stable result, got %v then %v", first, again)
			}
		}
	}
}
