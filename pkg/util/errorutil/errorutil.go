package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewUnauthenticated is returned when no usable identity accompanies a request.
func NewUnauthenticated(message string) error {
	return NewDomainError("UNAUTHENTICATED", message, http.StatusUnauthorized, nil)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// coreErrors maps the core taxonomy onto transport codes. Order matters:
// the first sentinel matched by errors.Is wins.
var coreErrors = []struct {
	sentinel  error
	code      string
	status    int
	retryable bool
}{
	{domain.ErrInvalidTransition, "INVALID_TRANSITION", http.StatusUnprocessableEntity, false},
	{domain.ErrUnauthorized, "UNAUTHORIZED", http.StatusForbidden, false},
	{domain.ErrStaleState, "STALE_STATE", http.StatusConflict, true},
	{domain.ErrIncomplete, "INCOMPLETE", http.StatusAccepted, true},
	{domain.ErrContentUnavailable, "CONTENT_UNAVAILABLE", http.StatusNotFound, true},
	{domain.ErrLedgerUnavailable, "LEDGER_UNAVAILABLE", http.StatusServiceUnavailable, true},
	{domain.ErrTicketNotFound, "NOT_FOUND", http.StatusNotFound, false},
	{domain.ErrInvalidInput, "VALIDATION_FAILED", http.StatusBadRequest, false},
}

// FromCore converts a core sentinel error into a DomainError. It returns
// nil if err does not wrap any core sentinel.
func FromCore(err error) *DomainError {
	for _, candidate := range coreErrors {
		if !errors.Is(err, candidate.sentinel) {
			continue
		}
		de := &DomainError{
			Code:       candidate.code,
			Message:    err.Error(),
			HTTPStatus: candidate.status,
			Retryable:  candidate.retryable,
			Err:        err,
		}
		var rejection *domain.RejectionError
		if errors.As(err, &rejection) {
			de.Details = map[string]any{
				"action": rejection.Action,
				"status": rejection.Status,
			}
		}
		return de
	}
	return nil
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de := FromCore(err); de != nil {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	de := ToDomainError(err)
	return de != nil && de.Retryable
}
