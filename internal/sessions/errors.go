package sessions

import (
	"errors"

	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrInvalidJoinCode = errors.New("invalid join code")
)

// NotFound wraps ErrSessionNotFound in a 404 typed error.
func NotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrSessionNotFound, "session not found")
}

// Closed wraps ErrSessionClosed in a 404 typed error; closed tables are hidden from guests.
func Closed() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrSessionClosed, "session not found or closed")
}
