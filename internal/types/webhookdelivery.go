package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// WebhookDelivery records each attempt to notify a downstream system of a
// submitted form. Kept as an audit trail alongside the immutable submission.
type WebhookDelivery struct {
	ID          uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RecordID    uuid.UUID   `gorm:"index;not null;column:record_id" json:"record_id"`
	Record      *FormRecord `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"-"`
	URL         string      `gorm:"not null;column:url" json:"url"`
	Status      string      `gorm:"not null;default:'pending';column:status" json:"status"`
	Attempts    int         `gorm:"not null;default:0;column:attempts" json:"attempts"`
	LastError   string      `gorm:"column:last_error" json:"last_error,omitempty"`
	DeliveredAt *time.Time  `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time   `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_delivery"
}
