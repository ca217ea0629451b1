package subvault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/subscription"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want subvault.Code
	}{
		{nil, 0},
		{subvault.ErrSubscriptionNotFound, 404},
		{subvault.ErrNotInitialized, 404},
		{subvault.ErrUnauthorized, 401},
		{subvault.ErrInvalidStatusTransition, 400},
		{subscription.ValidateTransition(subscription.StatusCancelled, subscription.StatusActive), 400},
		{subvault.ErrBelowMinimumTopup, 402},
		{subvault.ErrAlreadyInitialized, 409},
		{subvault.ErrIntervalNotElapsed, 1001},
		{subvault.ErrNotActive, 1002},
		{subvault.ErrUsageNotEnabled, 1003},
		{subvault.ErrInsufficientPrepaidBalance, 1004},
		{subvault.ErrInvalidAmount, 1005},
		{subvault.ErrInsufficientBalance, 1006},
		{subvault.ErrOverflow, 1007},
		{subvault.ErrInvalidInterval, 1008},
		{fmt.Errorf("charge 3: %w", subvault.ErrNotActive), 1002},
		{errors.New("connection reset"), 500},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := subvault.CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMultiError(t *testing.T) {
	var m subvault.MultiError
	if m.ErrOrNil() != nil {
		t.Fatal("empty MultiError should be nil")
	}
	m.Add(nil)
	m.Add(subvault.ValidationError{Field: "amount", Message: "must be positive"})
	if m.Error() != "subvault: validation failed for amount: must be positive" {
		t.Errorf("unexpected message %q", m.Error())
	}
	m.Add(subvault.ErrInvalidInterval)
	if m.Error() != "subvault: 2 errors occurred" {
		t.Errorf("unexpected message %q", m.Error())
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !subvault.IsNotFound(fmt.Errorf("x: %w", subvault.ErrNotInitialized)) {
		t.Error("IsNotFound(ErrNotInitialized) = false")
	}
	if !subvault.IsBalanceError(subvault.ErrInsufficientPrepaidBalance) {
		t.Error("IsBalanceError(ErrInsufficientPrepaidBalance) = false")
	}
	if subvault.IsRetryable(subvault.ErrNotActive) {
		t.Error("IsRetryable(ErrNotActive) = true")
	}
}
