package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// Payment tracks one guest's payment attempt against the processor.
type Payment struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID         uuid.UUID             `gorm:"column:session_id;type:uuid;not null;index"`
	GuestID           string                `gorm:"column:guest_id;not null"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:varchar(32);not null"`
	ProviderPaymentID string                `gorm:"column:provider_payment_id;not null;uniqueIndex:ux_payments_provider_payment"`
	Amount            decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          enums.Currency        `gorm:"column:currency;type:varchar(3);not null"`
	Status            enums.PaymentStatus   `gorm:"column:status;type:varchar(16);not null;default:'pending'"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
