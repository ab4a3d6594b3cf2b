package promotion

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the promotion request does not exist.
	ErrNotFound = errors.New("promotion request not found")

	// ErrAlreadyExists indicates a request with this ID already exists.
	ErrAlreadyExists = errors.New("promotion request already exists")

	// ErrInvalidTransition indicates the action is not legal in the current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrCompletenessTooLow indicates the snapshot is not complete enough to submit.
	ErrCompletenessTooLow = errors.New("completeness too low")

	// ErrForbidden indicates the actor may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a concurrent modification won the race, or an
	// idempotency token was reused for a different operation.
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable indicates the request store could not be reached.
	ErrStoreUnavailable = errors.New("request store unavailable")

	// ErrInvalidSnapshot indicates the project snapshot is missing or malformed.
	ErrInvalidSnapshot = errors.New("invalid project snapshot")

	// ErrInvalidTargetSpace indicates an unknown target space.
	ErrInvalidTargetSpace = errors.New("invalid target space")

	// ErrInvalidAction indicates an unknown or misplaced action.
	ErrInvalidAction = errors.New("invalid action")

	// ErrCommentRequired indicates reject and return need a comment.
	ErrCommentRequired = errors.New("comment required")

	// ErrInvalidRequest indicates the request record itself is malformed.
	ErrInvalidRequest = errors.New("invalid promotion request")
)

// InvalidTransitionError reports an action that the lifecycle does not allow.
type InvalidTransitionError struct {
	From   Status
	Action Action
	Level  Level
}

func (e *InvalidTransitionError) Error() string {
	if e.Level != LevelNone {
		return fmt.Sprintf("invalid transition: %s from %s at %s", e.Action, e.From, e.Level)
	}
	return fmt.Sprintf("invalid transition: %s from %s", e.Action, e.From)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CompletenessTooLowError reports a submit blocked by the completeness gate.
type CompletenessTooLowError struct {
	Required int
	Actual   int
}

func (e *CompletenessTooLowError) Error() string {
	return fmt.Sprintf("completeness too low: required %d, actual %d", e.Required, e.Actual)
}

// Is makes errors.Is(err, ErrCompletenessTooLow) hold.
func (e *CompletenessTooLowError) Is(target error) bool {
	return target == ErrCompletenessTooLow
}

// Shortfall returns how many points are missing.
func (e *CompletenessTooLowError) Shortfall() int {
	return e.Required - e.Actual
}

func invalidTransition(from Status, action Action, level Level) error {
	return &InvalidTransitionError{From: from, Action: action, Level: level}
}
