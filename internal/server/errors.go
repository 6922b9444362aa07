package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/memberbill/internal/audit/domain"
	billdomain "github.com/smallbiznis/memberbill/internal/bill/domain"
	billingcycledomain "github.com/smallbiznis/memberbill/internal/billingcycle/domain"
	clientdomain "github.com/smallbiznis/memberbill/internal/client/domain"
	feescheduledomain "github.com/smallbiznis/memberbill/internal/feeschedule/domain"
	memberdomain "github.com/smallbiznis/memberbill/internal/member/domain"
	paymentdomain "github.com/smallbiznis/memberbill/internal/payment/domain"
	"github.com/smallbiznis/memberbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

var validationSentinels = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	clientdomain.ErrInvalidID,
	clientdomain.ErrInvalidBusinessName,
	clientdomain.ErrInvalidDuration,
	clientdomain.ErrInvalidAmount,
	clientdomain.ErrInvalidCurrency,
	feescheduledomain.ErrInvalidClient,
	feescheduledomain.ErrInvalidID,
	feescheduledomain.ErrInvalidName,
	feescheduledomain.ErrInvalidAdmissionFee,
	feescheduledomain.ErrInvalidCustomFees,
	feescheduledomain.ErrInvalidCycleLength,
	feescheduledomain.ErrInvalidCurrency,
	memberdomain.ErrInvalidClient,
	memberdomain.ErrInvalidID,
	memberdomain.ErrInvalidFullName,
	memberdomain.ErrInvalidEmail,
	memberdomain.ErrInvalidFeeSchedule,
	memberdomain.ErrInvalidOutstandingFee,
	memberdomain.ErrInvalidNextBilling,
	memberdomain.ErrEmptyUpdate,
	billdomain.ErrInvalidClient,
	billdomain.ErrInvalidID,
	billdomain.ErrInvalidMemberID,
	billdomain.ErrInvalidBillDate,
	billdomain.ErrInvalidPaymentAmount,
	paymentdomain.ErrInvalidClient,
	paymentdomain.ErrInvalidBillID,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,
	paymentdomain.ErrInvalidPaidAt,
	auditdomain.ErrInvalidClient,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	billingcycledomain.ErrInvalidCyclePeriod,
}

var notFoundSentinels = []error{
	ErrNotFound,
	clientdomain.ErrNotFound,
	feescheduledomain.ErrNotFound,
	memberdomain.ErrNotFound,
	billdomain.ErrBillNotFound,
	gorm.ErrRecordNotFound,
}

var conflictSentinels = []error{
	ErrConflict,
	billdomain.ErrConcurrencyConflict,
	feescheduledomain.ErrScheduleInUse,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel, ok := matchSentinel(err, validationSentinels); ok {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if sentinel, ok := matchSentinel(err, notFoundSentinels); ok {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: sentinel.Error(),
		}
	}

	if sentinel, ok := matchSentinel(err, conflictSentinels); ok {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: sentinel.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	if status == http.StatusInternalServerError {
		return payload.Type, ""
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Message
}

func matchSentinel(err error, sentinels []error) (error, bool) {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel, true
		}
	}
	return nil, false
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case billingcycledomain.ErrInvalidCyclePeriod.Error():
		return "cycle length must be positive"
	default:
		return "invalid value"
	}
}
