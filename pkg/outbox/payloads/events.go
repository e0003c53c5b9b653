package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// SessionClosedEvent is emitted once when a table stops accepting writes.
type SessionClosedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Code      string    `json:"code"`
	ClosedAt  time.Time `json:"closed_at"`
}

// AssignmentCreatedEvent reports a new effective claim on an item.
type AssignmentCreatedEvent struct {
	AssignmentID uuid.UUID  `json:"assignment_id"`
	SessionID    uuid.UUID  `json:"session_id"`
	ItemID       uuid.UUID  `json:"item_id"`
	GuestID      string     `json:"guest_id"`
	Fraction     string     `json:"fraction"`
	SupersedesID *uuid.UUID `json:"supersedes_id,omitempty"`
}

// PaymentStatusEvent carries a terminal payment transition.
type PaymentStatusEvent struct {
	PaymentID         uuid.UUID           `json:"payment_id"`
	SessionID         uuid.UUID           `json:"session_id"`
	GuestID           string              `json:"guest_id"`
	ProviderPaymentID string              `json:"provider_payment_id"`
	ProviderEventID   string              `json:"provider_event_id"`
	Amount            string              `json:"amount"`
	Currency          enums.Currency      `json:"currency"`
	Status            enums.PaymentStatus `json:"status"`
}

// SessionKey scopes the event to its table for ordered delivery.
func (e SessionClosedEvent) SessionKey() uuid.UUID { return e.SessionID }

func (e AssignmentCreatedEvent) SessionKey() uuid.UUID { return e.SessionID }

func (e PaymentStatusEvent) SessionKey() uuid.UUID { return e.SessionID }
