package trading

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBalance is returned when a buy or a session budget exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBelowMinimumBudget is returned when a session budget is under the configured minimum.
	ErrBelowMinimumBudget = errors.New("budget below minimum")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
