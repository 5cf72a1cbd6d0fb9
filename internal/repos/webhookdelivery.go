package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/types"
)

type WebhookDeliveryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, deliveries []*types.WebhookDelivery) ([]*types.WebhookDelivery, error)
	GetByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) ([]*types.WebhookDelivery, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type webhookDeliveryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWebhookDeliveryRepo(db *gorm.DB, baseLog *logger.Logger) WebhookDeliveryRepo {
	return &webhookDeliveryRepo{db: db, log: baseLog.With("repo", "WebhookDeliveryRepo")}
}

func (r *webhookDeliveryRepo) Create(ctx context.Context, tx *gorm.DB, deliveries []*types.WebhookDelivery) ([]*types.WebhookDelivery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(deliveries) == 0 {
		return []*types.WebhookDelivery{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *webhookDeliveryRepo) GetByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) ([]*types.WebhookDelivery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.WebhookDelivery
	if recordID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *webhookDeliveryRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.WebhookDelivery{}).
		Where("id = ?", id).
		Updates(updates).Error
}
