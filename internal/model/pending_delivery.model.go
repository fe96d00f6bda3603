package model

import "time"

// DeliveryMode selects where a deferred delivery receipt goes when it
// fires.
type DeliveryMode string

const (
	// ModeSMPP sends the receipt back to the client as a deliver_sm.
	ModeSMPP DeliveryMode = "SMPP"
	// ModeLogOnly records the receipt without touching the wire.
	ModeLogOnly DeliveryMode = "LOG_ONLY"
)

// Receipt final states carried in the stat field of the DLR text.
const (
	StatDelivered   = "DELIVRD"
	StatUndelivered = "UNDELIV"
)

// PendingDelivery is a delivery receipt scheduled to fire after the
// configured delay. It holds everything needed to build the deliver_sm,
// so firing does not depend on the submit-time state still being around.
type PendingDelivery struct {
	MessageID  string
	SessionID  string
	SourceAddr string
	DestAddr   string
	Stat       string
	ErrCode    string
	Mode       DeliveryMode
	SubmitTime time.Time
	DueTime    time.Time
	Attempts   int
}
