package shared

import (
	"errors"
	"fmt"
)

// DomainError is a business-rule failure with a stable code the UI can branch on.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError creates a new domain error.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Errorf derives a detailed error from a sentinel, keeping its code.
func Errorf(base *DomainError, format string, args ...any) error {
	return &DomainError{Code: base.Code, Message: base.Message + ": " + fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound               = NewDomainError("NOT_FOUND", "resource not found")
	ErrInvalidInput           = NewDomainError("INVALID_INPUT", "invalid input")
	ErrUnauthenticated        = NewDomainError("UNAUTHENTICATED", "authentication required")
	ErrForbidden              = NewDomainError("FORBIDDEN", "not allowed for this principal")
	ErrUnknownProduct         = NewDomainError("UNKNOWN_PRODUCT", "unknown product")
	ErrUnknownClient          = NewDomainError("UNKNOWN_CLIENT", "unknown client")
	ErrUnknownOrder           = NewDomainError("UNKNOWN_ORDER", "unknown order")
	ErrUnknownLot             = NewDomainError("UNKNOWN_LOT", "unknown lot")
	ErrInsufficientStock      = NewDomainError("INSUFFICIENT_STOCK", "insufficient stock")
	ErrInvalidStateTransition = NewDomainError("INVALID_STATE_TRANSITION", "transition not allowed from current status")
	ErrDuplicateShipment      = NewDomainError("DUPLICATE_SHIPMENT", "order already shipped")
	ErrProductUnavailable     = NewDomainError("PRODUCT_UNAVAILABLE", "product is not on sale")
)

// CodeOf returns the domain code carried by err, or "" for infrastructure errors.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
