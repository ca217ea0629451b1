package subvault

import (
	"errors"
	"fmt"

	"github.com/xraph/subvault/subscription"
)

// Sentinel errors for every vault failure. Each maps to a stable numeric
// Code through CodeOf.
var (
	// General errors
	ErrSubscriptionNotFound = errors.New("subvault: subscription not found")
	ErrNotInitialized       = errors.New("subvault: vault not initialized")
	ErrUnauthorized         = errors.New("subvault: unauthorized")
	ErrAlreadyInitialized   = errors.New("subvault: already initialized")
	ErrInternal             = errors.New("subvault: internal error")

	// ErrInvalidStatusTransition is returned for any edge outside the
	// subscription status table.
	ErrInvalidStatusTransition = subscription.ErrInvalidTransition

	// Billing errors
	ErrBelowMinimumTopup          = errors.New("subvault: deposit below minimum top-up")
	ErrIntervalNotElapsed         = errors.New("subvault: billing interval not elapsed")
	ErrNotActive                  = errors.New("subvault: subscription not active")
	ErrUsageNotEnabled            = errors.New("subvault: usage billing not enabled")
	ErrInsufficientPrepaidBalance = errors.New("subvault: insufficient prepaid balance for usage")
	ErrInvalidAmount              = errors.New("subvault: invalid amount")
	ErrInsufficientBalance        = errors.New("subvault: insufficient balance")
	ErrOverflow                   = errors.New("subvault: arithmetic overflow")
	ErrInvalidInterval            = errors.New("subvault: invalid interval")
)

// Code is the stable numeric identifier of a vault error. Codes are part of
// the external contract and never change.
type Code int

const (
	CodeOK                         Code = 0
	CodeInvalidStatusTransition    Code = 400
	CodeUnauthorized               Code = 401
	CodeBelowMinimumTopup          Code = 402
	CodeNotFound                   Code = 404
	CodeAlreadyInitialized         Code = 409
	CodeInternal                   Code = 500
	CodeIntervalNotElapsed         Code = 1001
	CodeNotActive                  Code = 1002
	CodeUsageNotEnabled            Code = 1003
	CodeInsufficientPrepaidBalance Code = 1004
	CodeInvalidAmount              Code = 1005
	CodeInsufficientBalance        Code = 1006
	CodeOverflow                   Code = 1007
	CodeInvalidInterval            Code = 1008
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrSubscriptionNotFound, CodeNotFound},
	{ErrNotInitialized, CodeNotFound},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidStatusTransition, CodeInvalidStatusTransition},
	{ErrBelowMinimumTopup, CodeBelowMinimumTopup},
	{ErrAlreadyInitialized, CodeAlreadyInitialized},
	{ErrInternal, CodeInternal},
	{ErrIntervalNotElapsed, CodeIntervalNotElapsed},
	{ErrNotActive, CodeNotActive},
	{ErrUsageNotEnabled, CodeUsageNotEnabled},
	{ErrInsufficientPrepaidBalance, CodeInsufficientPrepaidBalance},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrInsufficientBalance, CodeInsufficientBalance},
	{ErrOverflow, CodeOverflow},
	{ErrInvalidInterval, CodeInvalidInterval},
}

// CodeOf returns the numeric code of err. Nil maps to CodeOK and errors that
// are not vault errors (store or transport failures) map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ValidationError represents a validation failure on a request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("subvault: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError collects several errors.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "subvault: no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("subvault: %d errors occurred", len(e.Errors))
	}
}

// Add appends err if it is non-nil.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns nil for an empty collection and e otherwise.
func (e MultiError) ErrOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// IsNotFound reports whether err is a missing subscription or missing settings.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrNotInitialized)
}

// IsBalanceError reports whether err stems from an underfunded balance.
func IsBalanceError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientPrepaidBalance)
}

// IsRetryable reports whether the same call may succeed later without any
// other party acting first.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIntervalNotElapsed)
}
