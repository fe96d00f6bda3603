package model

import "time"

// HLRLookup is one audited lookup outcome, persisted for reporting and
// for cache warmup after a restart.
type HLRLookup struct {
	ID             int64
	MSISDN         string
	Classification string
	ErrorCode      int
	Status         int
	Present        string
	Ported         string
	Type           string
	DLRErrorCode   string
	Source         string
	CreatedAt      time.Time
}
