package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xraph/subvault"
)

// CodeValidation is reported for malformed requests that never reached the
// vault.
const CodeValidation subvault.Code = 422

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code  subvault.Code `json:"code"`
	Error string        `json:"error"`
	// Details lists each failed field when a request has several.
	Details []string `json:"details,omitempty"`
	// Retryable is set when the same call may succeed later unchanged.
	Retryable bool `json:"retryable,omitempty"`
}

// httpStatus maps a vault code to an HTTP status. Codes below 600 are HTTP
// statuses already.
func httpStatus(code subvault.Code) int {
	switch code {
	case subvault.CodeIntervalNotElapsed, subvault.CodeNotActive:
		return http.StatusConflict
	case subvault.CodeUsageNotEnabled,
		subvault.CodeInsufficientPrepaidBalance,
		subvault.CodeInsufficientBalance,
		subvault.CodeInvalidAmount,
		subvault.CodeOverflow,
		subvault.CodeInvalidInterval:
		return http.StatusUnprocessableEntity
	}
	if code >= 400 && code < 600 {
		return int(code)
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders vault errors as ErrorResponse. Internal errors are
// logged and hidden from the client.
func (s *Server) ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorResponse
		he     *echo.HTTPError
		me     subvault.MultiError
		ve     subvault.ValidationError
	)
	switch {
	case errors.As(err, &he):
		status = he.Code
		body = ErrorResponse{Code: subvault.Code(he.Code), Error: http.StatusText(he.Code)}
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		}
	case errors.As(err, &me):
		status = http.StatusUnprocessableEntity
		body = ErrorResponse{Code: CodeValidation, Error: me.Error()}
		for _, e := range me.Errors {
			body.Details = append(body.Details, e.Error())
		}
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
		body = ErrorResponse{Code: CodeValidation, Error: ve.Error()}
	default:
		code := subvault.CodeOf(err)
		status = httpStatus(code)
		body = ErrorResponse{Code: code, Error: err.Error(), Retryable: subvault.IsRetryable(err)}
		if code == subvault.CodeInternal {
			s.logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
			)
			body.Error = http.StatusText(http.StatusInternalServerError)
		}
	}

	if err := c.JSON(status, body); err != nil {
		s.logger.Warn("write error response", "error", err)
	}
}
