package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// IntentRequest is what the processor needs to open a payment for one guest.
type IntentRequest struct {
	PaymentID   uuid.UUID
	SessionID   uuid.UUID
	GuestID     string
	AmountMinor int64
	Currency    enums.Currency
}

// ProcessorIntent is the processor's handle for a created payment.
type ProcessorIntent struct {
	ID           string
	ClientSecret string
}

// Processor is the outbound side of the payment provider.
type Processor interface {
	Provider() enums.PaymentProvider
	CreateIntent(ctx context.Context, req IntentRequest) (*ProcessorIntent, error)
	CancelIntent(ctx context.Context, providerPaymentID string) error
}

// ProviderEvent is a verified inbound notification.
type ProviderEvent struct {
	ID                string
	Type              string
	ProviderPaymentID string
	Payload           []byte
}

// Verifier authenticates a raw notification and decodes it.
type Verifier interface {
	Provider() enums.PaymentProvider
	Verify(payload []byte, signature string) (*ProviderEvent, error)
}
