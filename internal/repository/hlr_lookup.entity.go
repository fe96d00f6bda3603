package repository

import (
	"time"

	"github.com/nimasrn/hlr-gateway/internal/model"
)

type HLRLookupEntity struct {
	ID             int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	MSISDN         string    `db:"msisdn"         gorm:"column:msisdn;not null;index"`
	Classification string    `db:"classification" gorm:"column:classification;not null;index"`
	ErrorCode      int       `db:"error_code"     gorm:"column:error_code"`
	Status         int       `db:"status"         gorm:"column:status"`
	Present        string    `db:"present"        gorm:"column:present"`
	Ported         string    `db:"ported"         gorm:"column:ported"`
	Type           string    `db:"type"           gorm:"column:type"`
	DLRErrorCode   string    `db:"dlr_error_code" gorm:"column:dlr_error_code"`
	Source         string    `db:"source"         gorm:"column:source;not null"`
	CreatedAt      time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime;index"`
}

func (HLRLookupEntity) TableName() string {
	return "hlr_lookups"
}

func toHLRLookupEntity(m *model.HLRLookup) *HLRLookupEntity {
	if m == nil {
		return nil
	}
	return &HLRLookupEntity{
		ID:             m.ID,
		MSISDN:         m.MSISDN,
		Classification: m.Classification,
		ErrorCode:      m.ErrorCode,
		Status:         m.Status,
		Present:        m.Present,
		Ported:         m.Ported,
		Type:           m.Type,
		DLRErrorCode:   m.DLRErrorCode,
		Source:         m.Source,
		CreatedAt:      m.CreatedAt,
	}
}

func toHLRLookupModel(e *HLRLookupEntity) *model.HLRLookup {
	if e == nil {
		return nil
	}
	return &model.HLRLookup{
		ID:             e.ID,
		MSISDN:         e.MSISDN,
		Classification: e.Classification,
		ErrorCode:      e.ErrorCode,
		Status:         e.Status,
		Present:        e.Present,
		Ported:         e.Ported,
		Type:           e.Type,
		DLRErrorCode:   e.DLRErrorCode,
		Source:         e.Source,
		CreatedAt:      e.CreatedAt,
	}
}

func toHLRLookupModels(entities []*HLRLookupEntity) []*model.HLRLookup {
	if entities == nil {
		return nil
	}
	models := make([]*model.HLRLookup, len(entities))
	for i, e := range entities {
		models[i] = toHLRLookupModel(e)
	}
	return models
}
