package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// AssignInput claims a fraction of an item for a guest.
type AssignInput struct {
	SessionID uuid.UUID
	ItemID    uuid.UUID
	GuestID   string
	Fraction  decimal.Decimal
}

// ReassignInput supersedes an existing assignment with a new owner or fraction.
type ReassignInput struct {
	AssignmentID uuid.UUID
	GuestID      string
	Fraction     decimal.Decimal
}

// AssignmentDTO is the API representation of an assignment.
type AssignmentDTO struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	GuestID      string          `json:"guest_id"`
	Fraction     decimal.Decimal `json:"fraction"`
	SupersedesID *uuid.UUID      `json:"supersedes_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func FromModel(m *models.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:           m.ID,
		SessionID:    m.SessionID,
		ItemID:       m.ItemID,
		GuestID:      m.GuestID,
		Fraction:     m.Fraction,
		SupersedesID: m.SupersedesID,
		CreatedAt:    m.CreatedAt,
	}
}

// GuestLine is one claimed share in a guest's bill.
type GuestLine struct {
	AssignmentID uuid.UUID       `json:"assignment_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	Name         string          `json:"name"`
	Qty          int             `json:"qty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Fraction     decimal.Decimal `json:"fraction"`
	Share        decimal.Decimal `json:"share"`
}

// GuestTotal is a guest's share of the bill. Amount is what the guest pays;
// Tax and SuggestedTip are informational and derived from the session rates.
type GuestTotal struct {
	SessionID    uuid.UUID       `json:"session_id"`
	GuestID      string          `json:"guest_id"`
	Currency     enums.Currency  `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Tax          decimal.Decimal `json:"tax"`
	SuggestedTip decimal.Decimal `json:"suggested_tip"`
	Lines        []GuestLine     `json:"lines"`
}

// SessionTotal splits the table bill into claimed and unclaimed parts.
type SessionTotal struct {
	SessionID  uuid.UUID       `json:"session_id"`
	Currency   enums.Currency  `json:"currency"`
	Total      decimal.Decimal `json:"total"`
	Assigned   decimal.Decimal `json:"assigned"`
	Unassigned decimal.Decimal `json:"unassigned"`
}
