package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/age-b2b/backoffice/internal/shared"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestRespondErrorDistinguishesBusinessRefusals(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{shared.Errorf(shared.ErrInsufficientStock, "lot 1"), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{shared.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{shared.ErrDuplicateShipment, http.StatusConflict, "DUPLICATE_SHIPMENT"},
		{shared.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("ship order: %w", shared.ErrUnknownOrder), http.StatusNotFound, "UNKNOWN_ORDER"},
		{shared.ErrUnknownLot, http.StatusNotFound, "UNKNOWN_LOT"},
		{shared.ErrUnknownProduct, http.StatusNotFound, "UNKNOWN_PRODUCT"},
		{shared.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	}
	seen := map[string]bool{}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)
		p := decodeProblem(t, rec)
		require.Equal(t, tc.code, p.Code)
		require.False(t, seen[p.Type], "problem type %s reused", p.Type)
		seen[p.Type] = true
	}
}

func TestRespondErrorHidesInfrastructureFailures(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	p := decodeProblem(t, rec)
	require.Empty(t, p.Detail)
	require.Empty(t, p.Code)
}

func TestValidateReportsFields(t *testing.T) {
	type input struct {
		Quantity int64  `json:"quantity" validate:"gt=0"`
		Reason   string `json:"reason" validate:"required,oneof=LOST DAMAGED"`
	}
	err := Validate(input{Quantity: 0, Reason: "NOPE"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.Contains(t, err.Error(), "Quantity must be greater than 0")
	require.Contains(t, err.Error(), "Reason must be one of")

	require.NoError(t, Validate(input{Quantity: 3, Reason: "LOST"}))
}
