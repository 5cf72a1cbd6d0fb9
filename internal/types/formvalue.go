package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FormValue is one persisted field entry for a form record. Repeatable-row
// cells carry the owning row's stable id in RowID; scalar fields leave it
// empty. The (record_id, field_id, row_id) key is what makes step saves
// idempotent under retry.
type FormValue struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RecordID       uuid.UUID      `gorm:"uniqueIndex:idx_form_value_key;not null;column:record_id" json:"record_id"`
	Record         *FormRecord    `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"-"`
	FieldID        string         `gorm:"uniqueIndex:idx_form_value_key;not null;column:field_id" json:"field_id"`
	RowID          string         `gorm:"uniqueIndex:idx_form_value_key;not null;default:'';column:row_id" json:"row_id,omitempty"`
	Raw            datatypes.JSON `gorm:"type:jsonb;column:raw" json:"raw"`
	ManualOverride bool           `gorm:"not null;default:false;column:manual_override" json:"manual_override"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (FormValue) TableName() string {
	return "form_value"
}
