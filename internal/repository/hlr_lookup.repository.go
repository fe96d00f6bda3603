package repository

import (
	"context"
	"time"

	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/pkg/pg"
)

type HLRLookupRepository struct {
	*pg.DB
}

func NewHLRLookupRepository(db *pg.DB) *HLRLookupRepository {
	return &HLRLookupRepository{
		db,
	}
}

func (r *HLRLookupRepository) Create(ctx context.Context, lookup *model.HLRLookup) (*model.HLRLookup, error) {
	entity := toHLRLookupEntity(lookup)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toHLRLookupModel(entity), nil
}

// LatestPerMSISDN returns the newest audited lookup for each msisdn
// seen since the cutoff, newest numbers first. Used for cache warmup.
func (r *HLRLookupRepository) LatestPerMSISDN(ctx context.Context, since time.Time, limit int) ([]*model.HLRLookup, error) {
	var entities []*HLRLookupEntity

	sub := r.Read(ctx).WithContext(ctx).
		Model(&HLRLookupEntity{}).
		Select("msisdn, MAX(id) AS max_id").
		Where("created_at >= ?", since).
		Group("msisdn")

	err := r.Read(ctx).WithContext(ctx).
		Joins("JOIN (?) latest ON latest.max_id = hlr_lookups.id", sub).
		Order("hlr_lookups.id DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return toHLRLookupModels(entities), nil
}

func (r *HLRLookupRepository) GetByMSISDN(ctx context.Context, msisdn string, limit int) ([]*model.HLRLookup, error) {
	var entities []*HLRLookupEntity

	err := r.Read(ctx).WithContext(ctx).
		Where("msisdn = ?", msisdn).
		Order("id DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return toHLRLookupModels(entities), nil
}

// CountByClassification aggregates lookups since the cutoff, feeding
// the stats endpoint.
func (r *HLRLookupRepository) CountByClassification(ctx context.Context, since time.Time) (map[string]int64, error) {
	type rowCount struct {
		Classification string
		Total          int64
	}
	var rows []rowCount

	err := r.Read(ctx).WithContext(ctx).
		Model(&HLRLookupEntity{}).
		Select("classification, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("classification").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Classification] = row.Total
	}
	return counts, nil
}
