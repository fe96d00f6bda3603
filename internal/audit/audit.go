// Package audit persists lookup and receipt outcomes. It sits between
// the hot path and the repositories so a slow or absent database never
// blocks a session: writers are fire-and-forget with a bounded timeout.
package audit

import (
	"context"
	"time"

	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/internal/repository"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
)

const writeTimeout = 5 * time.Second

type Recorder struct {
	lookups  *repository.HLRLookupRepository
	receipts *repository.DeliveryReceiptRepository
}

func NewRecorder(lookups *repository.HLRLookupRepository, receipts *repository.DeliveryReceiptRepository) *Recorder {
	return &Recorder{lookups: lookups, receipts: receipts}
}

// RecordLookup stores one classification outcome. Errors are logged and
// dropped, the audit trail is best effort.
func (r *Recorder) RecordLookup(result *model.ClassificationResult) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := r.lookups.Create(ctx, &model.HLRLookup{
		MSISDN:         result.MSISDN,
		Classification: string(result.Classification),
		ErrorCode:      result.ErrorCode,
		Status:         result.Status,
		Present:        result.Present,
		Ported:         result.Ported,
		Type:           result.Type,
		DLRErrorCode:   result.DLRErrorCode,
		Source:         result.Source,
	})
	if err != nil {
		logger.Warn("[audit] lookup write failed", "msisdn", result.MSISDN, "error", err)
	}
}

// RecordReceipt stores one settled delivery receipt.
func (r *Recorder) RecordReceipt(pd *model.PendingDelivery, outcome string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := r.receipts.Create(ctx, &model.DeliveryReceipt{
		MessageID:  pd.MessageID,
		SessionID:  pd.SessionID,
		SourceAddr: pd.SourceAddr,
		DestAddr:   pd.DestAddr,
		Stat:       pd.Stat,
		ErrCode:    pd.ErrCode,
		Mode:       string(pd.Mode),
		Outcome:    outcome,
		Attempts:   pd.Attempts,
		SubmitAt:   pd.SubmitTime,
		DoneAt:     time.Now(),
	})
	if err != nil {
		logger.Warn("[audit] receipt write failed", "message_id", pd.MessageID, "error", err)
	}
}

// RecentLookups serves warmup: the newest audited verdict per msisdn
// since the cutoff. TIMEOUT rows are skipped, a stale timeout says
// nothing about the number.
func (r *Recorder) RecentLookups(since time.Time, limit int) ([]model.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lookups, err := r.lookups.LatestPerMSISDN(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	results := make([]model.ClassificationResult, 0, len(lookups))
	for _, l := range lookups {
		if l.Classification == string(model.ClassificationTimeout) {
			continue
		}
		results = append(results, model.ClassificationResult{
			MSISDN:         l.MSISDN,
			Classification: model.Classification(l.Classification),
			ErrorCode:      l.ErrorCode,
			Status:         l.Status,
			Present:        l.Present,
			Ported:         l.Ported,
			Type:           l.Type,
			DLRErrorCode:   l.DLRErrorCode,
			Source:         model.SourceCache,
		})
	}
	return results, nil
}
