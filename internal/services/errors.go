package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
	"github.com/souqly/backend/internal/models"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrInvalidInput        = errors.New("invalid input")

	// ErrDuplicateReference is returned when a ledger reference or client
	// reference has already been used.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrSettlementMismatch means line items no longer add up to the
	// escrowed total. It is never caused by the caller.
	ErrSettlementMismatch = errors.New("settlement does not match escrowed total")
)

type ErrorKind string

const (
	KindInsufficientFunds   ErrorKind = "INSUFFICIENT_FUNDS"
	KindInsufficientStock   ErrorKind = "INSUFFICIENT_STOCK"
	KindResourceUnavailable ErrorKind = "RESOURCE_UNAVAILABLE"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindInvalidState        ErrorKind = "INVALID_STATE"
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindDuplicateReference  ErrorKind = "DUPLICATE_REFERENCE"
	KindInternal            ErrorKind = "INTERNAL"
)

// InvalidTransitionError is returned when a lifecycle does not allow a move.
type InvalidTransitionError struct {
	Vertical models.Vertical
	ID       int64
	From     models.Status
	To       models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s for %s %d", e.From, e.To, e.Vertical, e.ID)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidState
}

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrResourceUnavailable, KindResourceUnavailable},
	{ErrNotFound, KindNotFound},
	{ErrInvalidState, KindInvalidState},
	{ErrInvalidInput, KindInvalidInput},
	{ErrDuplicateReference, KindDuplicateReference},
}

// KindOf classifies err. Anything unrecognised is internal.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindDuplicateReference, KindResourceUnavailable:
		return http.StatusConflict
	case KindInsufficientFunds, KindInsufficientStock:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show a caller.
func PublicMessage(err error) string {
	if KindOf(err) == KindInternal {
		return "Internal server error"
	}
	return err.Error()
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
