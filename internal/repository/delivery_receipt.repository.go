package repository

import (
	"context"
	"time"

	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/pkg/pg"
)

type DeliveryReceiptRepository struct {
	*pg.DB
}

func NewDeliveryReceiptRepository(db *pg.DB) *DeliveryReceiptRepository {
	return &DeliveryReceiptRepository{
		db,
	}
}

func (r *DeliveryReceiptRepository) Create(ctx context.Context, receipt *model.DeliveryReceipt) (*model.DeliveryReceipt, error) {
	entity := toDeliveryReceiptEntity(receipt)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDeliveryReceiptModel(entity), nil
}

func (r *DeliveryReceiptRepository) GetByMessageID(ctx context.Context, messageID string) ([]*model.DeliveryReceipt, error) {
	var entities []*DeliveryReceiptEntity

	err := r.Read(ctx).WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return toDeliveryReceiptModels(entities), nil
}

func (r *DeliveryReceiptRepository) ListByOutcome(ctx context.Context, outcome string, limit int) ([]*model.DeliveryReceipt, error) {
	var entities []*DeliveryReceiptEntity

	err := r.Read(ctx).WithContext(ctx).
		Where("outcome = ?", outcome).
		Order("id DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return toDeliveryReceiptModels(entities), nil
}

// CountByOutcome aggregates settled receipts since the cutoff.
func (r *DeliveryReceiptRepository) CountByOutcome(ctx context.Context, since time.Time) (map[string]int64, error) {
	type rowCount struct {
		Outcome string
		Total   int64
	}
	var rows []rowCount

	err := r.Read(ctx).WithContext(ctx).
		Model(&DeliveryReceiptEntity{}).
		Select("outcome, COUNT(*) AS total").
		Where("done_at >= ?", since).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Total
	}
	return counts, nil
}
