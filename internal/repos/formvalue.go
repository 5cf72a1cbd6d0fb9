package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/types"
)

type FormValueRepo interface {
	// Upsert writes field entries keyed by (record_id, field_id, row_id),
	// replacing any existing value. Re-sending the same payload after a
	// retry therefore converges to the same rows.
	Upsert(ctx context.Context, tx *gorm.DB, values []*types.FormValue) error
	GetByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) ([]*types.FormValue, error)
	DeleteByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) error
	DeleteRows(ctx context.Context, tx *gorm.DB, recordID uuid.UUID, fieldID string, keepRowIDs []string) error
}

type formValueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFormValueRepo(db *gorm.DB, baseLog *logger.Logger) FormValueRepo {
	return &formValueRepo{db: db, log: baseLog.With("repo", "FormValueRepo")}
}

func (r *formValueRepo) Upsert(ctx context.Context, tx *gorm.DB, values []*types.FormValue) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(values) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}, {Name: "field_id"}, {Name: "row_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"raw", "manual_override", "updated_at"}),
		}).
		Create(&values).Error
}

func (r *formValueRepo) GetByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) ([]*types.FormValue, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.FormValue
	if recordID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("record_id = ?", recordID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *formValueRepo) DeleteByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if recordID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("record_id = ?", recordID).
		Delete(&types.FormValue{}).Error
}

// DeleteRows drops repeatable rows the client no longer sends, identified
// by stable row id rather than array position.
func (r *formValueRepo) DeleteRows(ctx context.Context, tx *gorm.DB, recordID uuid.UUID, fieldID string, keepRowIDs []string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if recordID == uuid.Nil || fieldID == "" {
		return nil
	}
	q := transaction.WithContext(ctx).
		Where("record_id = ? AND field_id = ? AND row_id <> ''", recordID, fieldID)
	if len(keepRowIDs) > 0 {
		q = q.Where("row_id NOT IN ?", keepRowIDs)
	}
	return q.Delete(&types.FormValue{}).Error
}
