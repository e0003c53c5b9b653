package payments

import (
	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox"
	"github.com/angelmondragon/splitpay-backend/pkg/outbox/payloads"
)

func paymentStatusEvent(payment *models.Payment, providerEventID string) outbox.DomainEvent {
	eventType := enums.EventPaymentFailed
	if payment.Status == enums.PaymentStatusSucceeded {
		eventType = enums.EventPaymentSucceeded
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{GuestID: payment.GuestID},
		Data: payloads.PaymentStatusEvent{
			PaymentID:         payment.ID,
			SessionID:         payment.SessionID,
			GuestID:           payment.GuestID,
			ProviderPaymentID: payment.ProviderPaymentID,
			ProviderEventID:   providerEventID,
			Amount:            payment.Amount.String(),
			Currency:          payment.Currency,
			Status:            payment.Status,
		},
	}
}
