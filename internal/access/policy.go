// Package access decides which actions an actor may request on a ticket.
// Everything here is pure: no I/O and no ambient state.
package access

import (
	"sort"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// ActionSet is an unordered set of actions.
type ActionSet map[domain.Action]struct{}

// Has reports membership.
func (s ActionSet) Has(a domain.Action) bool {
	_, ok := s[a]
	return ok
}

// Sorted returns the members in a stable order for display.
func (s ActionSet) Sorted() []domain.Action {
	out := make([]domain.Action, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Subject describes the actor's relationship to one ticket.
type Subject struct {
	Role       domain.Role
	Status     domain.TicketStatus
	IsAssignee bool
	IsCreator  bool
}

// Policy holds the deployment switches that shape role capabilities.
type Policy struct {
	// SelfAssign lets an Agent take an open ticket for themselves.
	SelfAssign bool
}

// NewPolicy constructs a Policy.
func NewPolicy(selfAssign bool) Policy {
	return Policy{SelfAssign: selfAssign}
}

// Capabilities returns every action a role may ever request, independent
// of ticket state. Unknown roles get the empty set.
func (p Policy) Capabilities(role domain.Role) ActionSet {
	set := ActionSet{}
	switch role {
	case domain.RoleUser:
		set[domain.ActionComment] = struct{}{}
	case domain.RoleAgent:
		set[domain.ActionResolve] = struct{}{}
		set[domain.ActionComment] = struct{}{}
		if p.SelfAssign {
			set[domain.ActionAssign] = struct{}{}
		}
	case domain.RoleManager:
		for _, a := range domain.TransitionActions {
			set[a] = struct{}{}
		}
		set[domain.ActionComment] = struct{}{}
	}
	return set
}

// CanCreate reports whether the role may open new tickets.
func (p Policy) CanCreate(role domain.Role) bool {
	switch role {
	case domain.RoleUser, domain.RoleAgent, domain.RoleManager:
		return true
	}
	return false
}

// PermittedActions returns exactly the actions it is legal for the subject
// to request against a ticket in its current status.
func (p Policy) PermittedActions(s Subject) ActionSet {
	caps := p.Capabilities(s.Role)
	out := ActionSet{}
	for a := range caps {
		if p.allows(s, a) {
			out[a] = struct{}{}
		}
	}
	return out
}

// Allows reports whether a single action is permitted for the subject.
func (p Policy) Allows(s Subject, a domain.Action) bool {
	return p.Capabilities(s.Role).Has(a) && p.allows(s, a)
}

func (p Policy) allows(s Subject, a domain.Action) bool {
	if a == domain.ActionComment {
		switch s.Role {
		case domain.RoleUser:
			return s.IsCreator
		case domain.RoleAgent, domain.RoleManager:
			return true
		}
		return false
	}
	if _, ok := domain.LookupEdge(s.Status, a); !ok {
		return false
	}
	switch s.Role {
	case domain.RoleManager:
		return true
	case domain.RoleAgent:
		switch a {
		case domain.ActionResolve:
			return s.IsAssignee
		case domain.ActionAssign:
			// Self-assignment only; the target is checked by the workflow engine.
			return p.SelfAssign
		}
	}
	return false
}
