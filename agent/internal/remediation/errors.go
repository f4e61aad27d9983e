package remediation

import (
	"errors"
	"fmt"
)

// ErrNoAction is the outcome error of an attempt on a backend that has no
// remediation action bound.
var ErrNoAction = errors.New("remediation: no action configured")

// panicError is returned when an action panics.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("remediation: action panicked: %v", e.value)
}
