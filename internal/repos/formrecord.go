package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/types"
)

type FormRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, records []*types.FormRecord) ([]*types.FormRecord, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FormRecord, error)
	// GetByIDForUpdate takes a row lock so the status check and the step
	// write that follows it are observed atomically by concurrent readers.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FormRecord, error)
	GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.FormRecord, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type formRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFormRecordRepo(db *gorm.DB, baseLog *logger.Logger) FormRecordRepo {
	return &formRecordRepo{db: db, log: baseLog.With("repo", "FormRecordRepo")}
}

func (r *formRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.FormRecord) ([]*types.FormRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(records) == 0 {
		return []*types.FormRecord{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *formRecordRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FormRecord, error) {
	return r.getByID(ctx, tx, id, false)
}

func (r *formRecordRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FormRecord, error) {
	return r.getByID(ctx, tx, id, true)
}

func (r *formRecordRepo) getByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, forUpdate bool) (*types.FormRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	q := transaction.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var record types.FormRecord
	err := q.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *formRecordRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.FormRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.FormRecord
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *formRecordRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.FormRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *formRecordRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.FormRecord{}).Error
}
