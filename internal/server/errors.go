package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/warebill/internal/apperror"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Code    apperror.Code     `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var errRouteNotFound = apperror.ErrNotFound.WithMessage("route not found")

var statusByCode = map[apperror.Code]int{
	apperror.CodeMissingParameters:       http.StatusBadRequest,
	apperror.CodeInvalidDateRange:        http.StatusBadRequest,
	apperror.CodeInvalidArgument:         http.StatusBadRequest,
	apperror.CodeInvalidAmount:           http.StatusBadRequest,
	apperror.CodeUnauthenticated:         http.StatusUnauthorized,
	apperror.CodeUnauthorizedTenant:      http.StatusForbidden,
	apperror.CodeNotFound:                http.StatusNotFound,
	apperror.CodeInvoiceAlreadyExists:    http.StatusConflict,
	apperror.CodeInvoiceNotEditable:      http.StatusConflict,
	apperror.CodeInvalidStatusTransition: http.StatusConflict,
	apperror.CodeNoPendingUsage:          http.StatusUnprocessableEntity,
	apperror.CodeRateNotFound:            http.StatusUnprocessableEntity,
	apperror.CodePricingMisconfigured:    http.StatusUnprocessableEntity,
	apperror.CodeRateLimited:             http.StatusTooManyRequests,
	apperror.CodeStorageWriteFailure:     http.StatusServiceUnavailable,
	apperror.CodeUsageConsumed:           http.StatusServiceUnavailable,
}

// ErrorHandlingMiddleware renders the last handler error once, after the chain ran.
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

func invalidRequestError(field string, cause error) error {
	return apperror.New(apperror.CodeInvalidArgument, "request body or query is malformed").
		WithField(field).
		Wrap(cause)
}

func invalidIDError(field string) error {
	return apperror.New(apperror.CodeInvalidArgument, field+" must be a numeric id").WithField(field)
}

// mapError never leaks causes; only the code and its caller-safe message go out.
func mapError(err error) (int, errorPayload) {
	e, ok := apperror.As(err)
	if !ok {
		return http.StatusInternalServerError, errorPayload{
			Code:    apperror.CodeInternal,
			Message: "internal server error",
		}
	}

	status, known := statusByCode[e.Code]
	if !known {
		return http.StatusInternalServerError, errorPayload{
			Code:    apperror.CodeInternal,
			Message: "internal server error",
		}
	}

	payload := errorPayload{Code: e.Code, Message: e.Message}
	if e.Field != "" {
		payload.Errors = []ValidationError{{
			Field:   e.Field,
			Code:    string(e.Code),
			Message: e.Message,
		}}
	}
	return status, payload
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", string(payload.Code)
	default:
		return "client", string(payload.Code)
	}
}
