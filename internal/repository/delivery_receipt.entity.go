package repository

import (
	"time"

	"github.com/nimasrn/hlr-gateway/internal/model"
)

type DeliveryReceiptEntity struct {
	ID         int64     `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	MessageID  string    `db:"message_id"  gorm:"column:message_id;not null;index"`
	SessionID  string    `db:"session_id"  gorm:"column:session_id;not null;index"`
	SourceAddr string    `db:"source_addr" gorm:"column:source_addr"`
	DestAddr   string    `db:"dest_addr"   gorm:"column:dest_addr"`
	Stat       string    `db:"stat"        gorm:"column:stat;not null"`
	ErrCode    string    `db:"err_code"    gorm:"column:err_code;not null"`
	Mode       string    `db:"mode"        gorm:"column:mode;not null"`
	Outcome    string    `db:"outcome"     gorm:"column:outcome;not null;index"`
	Attempts   int       `db:"attempts"    gorm:"column:attempts"`
	SubmitAt   time.Time `db:"submit_at"   gorm:"column:submit_at"`
	DoneAt     time.Time `db:"done_at"     gorm:"column:done_at"`
}

func (DeliveryReceiptEntity) TableName() string {
	return "delivery_receipts"
}

func toDeliveryReceiptEntity(m *model.DeliveryReceipt) *DeliveryReceiptEntity {
	if m == nil {
		return nil
	}
	return &DeliveryReceiptEntity{
		ID:         m.ID,
		MessageID:  m.MessageID,
		SessionID:  m.SessionID,
		SourceAddr: m.SourceAddr,
		DestAddr:   m.DestAddr,
		Stat:       m.Stat,
		ErrCode:    m.ErrCode,
		Mode:       m.Mode,
		Outcome:    m.Outcome,
		Attempts:   m.Attempts,
		SubmitAt:   m.SubmitAt,
		DoneAt:     m.DoneAt,
	}
}

func toDeliveryReceiptModel(e *DeliveryReceiptEntity) *model.DeliveryReceipt {
	if e == nil {
		return nil
	}
	return &model.DeliveryReceipt{
		ID:         e.ID,
		MessageID:  e.MessageID,
		SessionID:  e.SessionID,
		SourceAddr: e.SourceAddr,
		DestAddr:   e.DestAddr,
		Stat:       e.Stat,
		ErrCode:    e.ErrCode,
		Mode:       e.Mode,
		Outcome:    e.Outcome,
		Attempts:   e.Attempts,
		SubmitAt:   e.SubmitAt,
		DoneAt:     e.DoneAt,
	}
}

func toDeliveryReceiptModels(entities []*DeliveryReceiptEntity) []*model.DeliveryReceipt {
	if entities == nil {
		return nil
	}
	models := make([]*model.DeliveryReceipt, len(entities))
	for i, e := range entities {
		models[i] = toDeliveryReceiptModel(e)
	}
	return models
}
