// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/age-b2b/backoffice/internal/shared"
)

type problemMapping struct {
	status int
	title  string
}

var domainProblems = map[string]problemMapping{
	shared.ErrNotFound.Code:               {http.StatusNotFound, "Not Found"},
	shared.ErrUnknownProduct.Code:         {http.StatusNotFound, "Unknown Product"},
	shared.ErrUnknownClient.Code:          {http.StatusNotFound, "Unknown Client"},
	shared.ErrUnknownOrder.Code:           {http.StatusNotFound, "Unknown Order"},
	shared.ErrUnknownLot.Code:             {http.StatusNotFound, "Unknown Lot"},
	shared.ErrInsufficientStock.Code:      {http.StatusConflict, "Insufficient Stock"},
	shared.ErrInvalidStateTransition.Code: {http.StatusConflict, "Invalid State Transition"},
	shared.ErrDuplicateShipment.Code:      {http.StatusConflict, "Duplicate Shipment"},
	shared.ErrProductUnavailable.Code:     {http.StatusUnprocessableEntity, "Product Unavailable"},
	shared.ErrForbidden.Code:              {http.StatusForbidden, "Forbidden"},
	shared.ErrUnauthenticated.Code:        {http.StatusUnauthorized, "Unauthorized"},
	shared.ErrInvalidInput.Code:           {http.StatusBadRequest, "Validation Failed"},
}

// ProblemType builds the stable problem type URI for a domain code.
func ProblemType(code string) string {
	return "urn:backoffice:problem:" + strings.ToLower(strings.ReplaceAll(code, "_", "-"))
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	RespondErrorWith(w, err, nil)
}

// RespondErrorWith is RespondError with extra problem members.
func RespondErrorWith(w http.ResponseWriter, err error, extensions map[string]any) {
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		write(w, ProblemDetail{
			Type:       ProblemType("IDEMPOTENCY_CONFLICT"),
			Title:      "Duplicate Request",
			Status:     http.StatusConflict,
			Detail:     err.Error(),
			Extensions: extensions,
		})
		return
	}
	code := shared.CodeOf(err)
	mapping, ok := domainProblems[code]
	if !ok {
		write(w, ProblemDetail{
			Title:      "Internal Error",
			Status:     http.StatusInternalServerError,
			Extensions: extensions,
		})
		return
	}
	write(w, ProblemDetail{
		Type:       ProblemType(code),
		Title:      mapping.title,
		Status:     mapping.status,
		Detail:     err.Error(),
		Code:       code,
		Extensions: extensions,
	})
}
