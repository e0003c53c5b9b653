package payments

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/splitpay-backend/pkg/stripe"
)

// Stripe event types the reconciler acts on.
const (
	StripeEventSucceeded = string(stripe.EventTypePaymentIntentSucceeded)
	StripeEventFailed    = string(stripe.EventTypePaymentIntentPaymentFailed)
	StripeEventCanceled  = string(stripe.EventTypePaymentIntentCanceled)
)

type stripeAPI interface {
	CreatePaymentIntent(ctx context.Context, in pkgstripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) error
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// StripeGateway adapts the Stripe client to Processor and Verifier.
type StripeGateway struct {
	api stripeAPI
}

func NewStripeGateway(api stripeAPI) *StripeGateway {
	return &StripeGateway{api: api}
}

func (g *StripeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*ProcessorIntent, error) {
	intent, err := g.api.CreatePaymentIntent(ctx, pkgstripe.PaymentIntentParams{
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency.String(),
		Metadata: map[string]string{
			"session_id": req.SessionID.String(),
			"guest_id":   req.GuestID,
			"payment_id": req.PaymentID.String(),
		},
		IdempotencyKey: "intent-" + req.PaymentID.String(),
	})
	if err != nil {
		return nil, err
	}
	if intent == nil || intent.ID == "" {
		return nil, errors.New("stripe returned an empty payment intent")
	}
	return &ProcessorIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, providerPaymentID string) error {
	return g.api.CancelPaymentIntent(ctx, providerPaymentID)
}

func (g *StripeGateway) Verify(payload []byte, signature string) (*ProviderEvent, error) {
	if signature == "" {
		return nil, errors.New("stripe signature missing")
	}
	event, err := g.api.ConstructEvent(payload, signature)
	if err != nil {
		return nil, err
	}
	if event.ID == "" {
		return nil, errors.New("stripe event id missing")
	}
	out := &ProviderEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: payload,
	}
	if event.Data != nil {
		out.ProviderPaymentID = event.GetObjectValue("id")
	}
	return out, nil
}
