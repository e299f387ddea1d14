package domain

// Action enumerates the operations a caller may request on a ticket.
type Action string

const (
	ActionAssign   Action = "assign"
	ActionReassign Action = "reassign"
	ActionResolve  Action = "resolve"
	ActionClose    Action = "close"
	ActionReopen   Action = "reopen"
	ActionComment  Action = "comment"
)

// TransitionActions lists the actions that move a ticket through the state table.
var TransitionActions = []Action{ActionAssign, ActionReassign, ActionResolve, ActionClose, ActionReopen}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionAssign, ActionReassign, ActionResolve, ActionClose, ActionReopen, ActionComment:
		return true
	}
	return false
}

// IsTransition reports whether a changes ticket status or assignment.
func (a Action) IsTransition() bool {
	return a.Valid() && a != ActionComment
}

// Edge is one row of the workflow state table.
type Edge struct {
	From          TicketStatus
	Action        Action
	To            TicketStatus
	SetsAssignee  bool
	ClearAssignee bool
}

type edgeKey struct {
	from   TicketStatus
	action Action
}

var stateTable = map[edgeKey]Edge{
	{TicketStatusOpen, ActionAssign}:         {From: TicketStatusOpen, Action: ActionAssign, To: TicketStatusInProgress, SetsAssignee: true},
	{TicketStatusInProgress, ActionReassign}: {From: TicketStatusInProgress, Action: ActionReassign, To: TicketStatusInProgress, SetsAssignee: true},
	{TicketStatusInProgress, ActionResolve}:  {From: TicketStatusInProgress, Action: ActionResolve, To: TicketStatusResolved},
	{TicketStatusResolved, ActionClose}:      {From: TicketStatusResolved, Action: ActionClose, To: TicketStatusClosed},
	{TicketStatusClosed, ActionReopen}:       {From: TicketStatusClosed, Action: ActionReopen, To: TicketStatusOpen, ClearAssignee: true},
}

// LookupEdge returns the state table row for (from, action).
func LookupEdge(from TicketStatus, action Action) (Edge, bool) {
	edge, ok := stateTable[edgeKey{from: from, action: action}]
	return edge, ok
}

// Edges returns every row of the state table.
func Edges() []Edge {
	out := make([]Edge, 0, len(stateTable))
	for _, status := range statusOrder {
		for _, action := range TransitionActions {
			if edge, ok := stateTable[edgeKey{status, action}]; ok {
				out = append(out, edge)
			}
		}
	}
	return out
}
