package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	memberdomain "github.com/smallbiznis/memberbill/internal/member/domain"
	paymentdomain "github.com/smallbiznis/memberbill/internal/payment/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		errType string
		code    string
	}{
		{name: "payment validation", err: paymentdomain.ErrInvalidAmount, status: http.StatusBadRequest, errType: "validation_error", code: "invalid_amount"},
		{name: "wrapped validation", err: fmt.Errorf("member: %w", memberdomain.ErrInvalidEmail), status: http.StatusBadRequest, errType: "validation_error", code: "invalid_email"},
		{name: "explicit validation", err: newValidationError("x", "invalid_x", "bad x"), status: http.StatusBadRequest, errType: "validation_error", code: "invalid_x"},
		{name: "missing schedule", err: fmt.Errorf("member 1: %w", feescheduledomain.ErrNotFound), status: http.StatusNotFound, errType: "not_found"},
		{name: "missing bill", err: billdomain.ErrBillNotFound, status: http.StatusNotFound, errType: "not_found"},
		{name: "lost update", err: fmt.Errorf("apply payment: %w", billdomain.ErrConcurrencyConflict), status: http.StatusConflict, errType: "conflict"},
		{name: "unknown", err: errors.New("disk on fire"), status: http.StatusInternalServerError, errType: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.errType, payload.Type)
			if tt.code != "" {
				if assert.Len(t, payload.Errors, 1) {
					assert.Equal(t, tt.code, payload.Errors[0].Code)
				}
			}
		})
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(paymentdomain.ErrInvalidMethod)
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_method", code)

	errType, code = classifyErrorForLog(billdomain.ErrConcurrencyConflict)
	assert.Equal(t, "conflict", errType)
	assert.Equal(t, "concurrency_conflict", code)

	errType, code = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal_error", errType)
	assert.Empty(t, code)
}
