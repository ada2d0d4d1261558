package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{"validation maps to 400", ErrCodeValidationMissingField, http.StatusBadRequest},
		{"invalid json maps to 400", ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{"incompatible IMT maps to 422", ErrCodeIncompatibleIMT, http.StatusUnprocessableEntity},
		{"degenerate curve maps to 422", ErrCodeDegenerateCurve, http.StatusUnprocessableEntity},
		{"invalid economics maps to 422", ErrCodeInvalidEconomics, http.StatusUnprocessableEntity},
		{"malformed curve maps to 422", ErrCodeMalformedCurve, http.StatusUnprocessableEntity},
		{"not found maps to 404", ErrCodeNotFoundRun, http.StatusNotFound},
		{"conflict maps to 409", ErrCodeConflictRunExists, http.StatusConflict},
		{"upstream maps to 502", ErrCodeUpstreamHazard, http.StatusBadGateway},
		{"cache inconsistency maps to 500", ErrCodeCacheInconsistency, http.StatusInternalServerError},
		{"internal maps to 500", ErrCodeInternalDB, http.StatusInternalServerError},
		{"unknown code maps to 500", ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestAppErrorErrorAndUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := NewAppError(ErrCodeDegenerateCurve, "curve has one point", inner)

	assert.Equal(t, "risk_degenerate_curve: curve has one point", err.Error())
	assert.Equal(t, inner, errors.Unwrap(err))

	var appErr *AppError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &appErr))
	assert.Equal(t, ErrCodeDegenerateCurve, appErr.Code)
}

func TestAppErrorWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeInvalidEconomics, "bad rate", nil,
		map[string]any{"parameter": "interest_rate"})

	derived := base.WithDetails(map[string]any{"asset_id": "a-1"})

	assert.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
	assert.Equal(t, "interest_rate", derived.Details["parameter"])
	assert.Equal(t, "a-1", derived.Details["asset_id"])
}
