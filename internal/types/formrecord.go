package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Form lifecycle statuses. Any successful step write against a non-draft
// record reverts it to StatusDraft before the write becomes visible.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// StepCompletion is the per-step entry stored in FormRecord.StepStatus,
// keyed by the step number as a decimal string.
type StepCompletion struct {
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updated_at"`
}

type FormRecord struct {
	ID                uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID            uuid.UUID         `gorm:"index;not null;column:user_id" json:"user_id"`
	User              *User             `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	FormType          string            `gorm:"not null;column:form_type" json:"form_type"`
	Status            string            `gorm:"not null;default:'draft';column:status" json:"status"`
	LastCompletedStep int               `gorm:"not null;default:0;column:last_completed_step" json:"last_completed_step"`
	StepStatus        datatypes.JSONMap `gorm:"type:jsonb;column:step_status" json:"step_status"`
	SubmittedAt       *time.Time        `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (FormRecord) TableName() string {
	return "form_record"
}
