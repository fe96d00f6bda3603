package model

import "time"

// Receipt settlement outcomes recorded by the scheduler.
const (
	OutcomeDelivered = "delivered"
	OutcomeLogged    = "logged"
	OutcomeLost      = "lost"
	OutcomeCancelled = "cancelled"
)

// DeliveryReceipt is the audit record of one settled delivery receipt,
// wire-delivered or log-only.
type DeliveryReceipt struct {
	ID         int64
	MessageID  string
	SessionID  string
	SourceAddr string
	DestAddr   string
	Stat       string
	ErrCode    string
	Mode       string
	Outcome    string
	Attempts   int
	SubmitAt   time.Time
	DoneAt     time.Time
}
