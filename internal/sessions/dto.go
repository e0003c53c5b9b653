package sessions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// CreateSessionInput describes a new table.
type CreateSessionInput struct {
	RestaurantName string
	Currency       enums.Currency
	TaxRate        *decimal.Decimal
	TipRate        *decimal.Decimal
}

// SessionDTO is the API representation of a session.
type SessionDTO struct {
	ID             uuid.UUID           `json:"id"`
	Code           string              `json:"code"`
	RestaurantName string              `json:"restaurant_name"`
	Currency       enums.Currency      `json:"currency"`
	TaxRate        decimal.Decimal     `json:"tax_rate"`
	TipRate        decimal.Decimal     `json:"tip_rate"`
	Status         enums.SessionStatus `json:"status"`
	ClosedAt       *time.Time          `json:"closed_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// FromModel maps the persisted row to its API shape.
func FromModel(m *models.Session) SessionDTO {
	return SessionDTO{
		ID:             m.ID,
		Code:           m.Code,
		RestaurantName: m.RestaurantName,
		Currency:       m.Currency,
		TaxRate:        m.TaxRate,
		TipRate:        m.TipRate,
		Status:         m.Status,
		ClosedAt:       m.ClosedAt,
		CreatedAt:      m.CreatedAt,
	}
}
