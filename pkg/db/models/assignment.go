package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Assignment is an append-only claim of a guest on a fraction of an item.
// A row referenced by another row's SupersedesID is no longer effective.
type Assignment struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID    uuid.UUID       `gorm:"column:session_id;type:uuid;not null;index"`
	ItemID       uuid.UUID       `gorm:"column:item_id;type:uuid;not null;index"`
	GuestID      string          `gorm:"column:guest_id;not null;index"`
	Fraction     decimal.Decimal `gorm:"column:fraction;type:numeric(7,6);not null"`
	SupersedesID *uuid.UUID      `gorm:"column:supersedes_id;type:uuid;uniqueIndex:ux_assignments_supersedes"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// AssignedItem joins an effective assignment with its item's pricing.
type AssignedItem struct {
	AssignmentID uuid.UUID       `gorm:"column:assignment_id"`
	ItemID       uuid.UUID       `gorm:"column:item_id"`
	GuestID      string          `gorm:"column:guest_id"`
	Fraction     decimal.Decimal `gorm:"column:fraction"`
	Name         string          `gorm:"column:name"`
	Qty          int             `gorm:"column:qty"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price"`
}

// Share is the unrounded amount the assignment claims.
func (a AssignedItem) Share() decimal.Decimal {
	return a.UnitPrice.Mul(decimal.NewFromInt(int64(a.Qty))).Mul(a.Fraction)
}
