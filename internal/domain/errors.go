package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStaleState         = errors.New("stale state")
	ErrContentUnavailable = errors.New("content unavailable")
	ErrIncomplete         = errors.New("ticket incomplete")
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// RejectionError explains why a requested action was refused.
type RejectionError struct {
	Reason  error
	Action  Action
	Status  TicketStatus
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: cannot %s on %s ticket: %s", e.Reason, e.Action, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: cannot %s on %s ticket", e.Reason, e.Action, e.Status)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// Reject builds a RejectionError.
func Reject(reason error, action Action, status TicketStatus, message string) error {
	return &RejectionError{Reason: reason, Action: action, Status: status, Message: message}
}
