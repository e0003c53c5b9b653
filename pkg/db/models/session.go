package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// Session is a table: the unit guests join with a short code and split a bill inside.
type Session struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code           string              `gorm:"column:code;type:varchar(6);not null;uniqueIndex:ux_sessions_code"`
	RestaurantName string              `gorm:"column:restaurant_name;not null"`
	Currency       enums.Currency      `gorm:"column:currency;type:varchar(3);not null;default:'MXN'"`
	TaxRate        decimal.Decimal     `gorm:"column:tax_rate;type:numeric(5,2);not null"`
	TipRate        decimal.Decimal     `gorm:"column:tip_rate;type:numeric(5,2);not null"`
	Status         enums.SessionStatus `gorm:"column:status;type:varchar(16);not null;default:'open'"`
	ClosedAt       *time.Time          `gorm:"column:closed_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOpen reports whether the session still accepts writes.
func (s Session) IsOpen() bool {
	return s.Status == enums.SessionStatusOpen
}
