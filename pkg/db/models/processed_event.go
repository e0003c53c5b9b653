package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessedEvent marks a provider notification whose effects were applied.
type ProcessedEvent struct {
	EventID    string         `gorm:"column:event_id;primaryKey"`
	Provider   string         `gorm:"column:provider;type:varchar(32);not null"`
	EventType  string         `gorm:"column:event_type;not null"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb"`
	ReceivedAt time.Time      `gorm:"column:received_at;not null"`
}
