package subscription

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by ValidateTransition for any edge that
// is not in the transition table.
var ErrInvalidTransition = errors.New("subvault: invalid status transition")

// transitions is the adjacency table of legal status changes. A same-state
// transition is always legal and is not listed.
var transitions = map[Status][]Status{
	StatusActive:              {StatusPaused, StatusCancelled, StatusInsufficientBalance},
	StatusPaused:              {StatusActive, StatusCancelled},
	StatusInsufficientBalance: {StatusActive, StatusCancelled},
	StatusCancelled:           {},
}

// ValidateTransition returns nil if moving from one status to another is
// legal, and an error wrapping ErrInvalidTransition otherwise.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CanTransition is the boolean form of ValidateTransition.
func CanTransition(from, to Status) bool {
	targets, ok := transitions[from]
	if !ok || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal targets for status, excluding the
// implicit same-state transition. Cancelled yields an empty slice.
func AllowedTransitions(status Status) []Status {
	targets := transitions[status]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}
