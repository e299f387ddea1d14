package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// statusOrder is the ledger's on-chain ordering of statuses.
var statusOrder = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

// AllStatuses returns every status in ledger index order.
func AllStatuses() []TicketStatus {
	out := make([]TicketStatus, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// Index returns the ledger wire index of the status, or -1 if unknown.
func (s TicketStatus) Index() int {
	for i, candidate := range statusOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s.Index() >= 0
}

// StatusFromIndex maps a ledger status index back to a status.
func StatusFromIndex(idx int) (TicketStatus, error) {
	if idx < 0 || idx >= len(statusOrder) {
		return "", fmt.Errorf("unknown status index %d", idx)
	}
	return statusOrder[idx], nil
}

// Ticket is the authoritative ledger view of a ticket. Title and content
// references are fixed by the Created event and are not part of the
// mutable ledger state.
type Ticket struct {
	ID        string
	Status    TicketStatus
	Creator   string
	Assignee  string
	CreatedAt time.Time
	// Sequence is the ledger sequence of the last write that touched the ticket.
	Sequence int64
}

// HasAssignee reports whether the ticket is currently assigned.
func (t Ticket) HasAssignee() bool {
	return t.Assignee != ""
}
