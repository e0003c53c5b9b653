package payments

import (
	"errors"

	pkgerrors "github.com/angelmondragon/splitpay-backend/pkg/errors"
)

var (
	ErrInvalidSignature = errors.New("invalid provider signature")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrNothingToPay     = errors.New("guest total is zero")
)

// InvalidSignature wraps the verification failure in a 400 typed error.
func InvalidSignature(cause error) error {
	err := pkgerrors.Wrap(pkgerrors.CodeValidation, ErrInvalidSignature, "invalid webhook signature")
	if cause != nil {
		return errors.Join(err, cause)
	}
	return err
}

func paymentNotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrPaymentNotFound, "payment not found")
}
