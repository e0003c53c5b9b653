package ledger

import (
	"errors"

	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
)

var (
	ErrInvalidFraction    = errors.New("fraction must be greater than 0 and at most 1")
	ErrOverAllocated      = errors.New("item fractions would exceed 1")
	ErrGuestNotFound      = errors.New("guest has no assignments in session")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAlreadySuperseded  = errors.New("assignment already superseded")
)

func invalidFraction() error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidFraction, ErrInvalidFraction.Error())
}

func overAllocated(remaining string) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrOverAllocated, "item is over-allocated").
		WithDetails(map[string]string{"remaining_fraction": remaining})
}

// GuestNotFound wraps ErrGuestNotFound in a 404 typed error.
func GuestNotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrGuestNotFound, "guest not found")
}

func assignmentNotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrAssignmentNotFound, "assignment not found")
}

func alreadySuperseded() error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAlreadySuperseded, "assignment was already reassigned")
}
