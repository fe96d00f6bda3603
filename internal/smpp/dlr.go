package smpp

import (
	"fmt"
	"time"
)

// dlrDateLayout renders YYMMDDhhmm, the timestamp format receipts use.
const dlrDateLayout = "0601021504"

// FormatDLRDate formats a timestamp the way delivery receipts expect.
func FormatDLRDate(t time.Time) string {
	return t.Format(dlrDateLayout)
}

// DLRText builds the short_message text of a delivery receipt. The field
// order and the fixed sub/dlvrd counters match what downstream DLR
// parsers key on, so nothing here is configurable.
func DLRText(messageID, stat, errCode string, submit, done time.Time) string {
	return fmt.Sprintf(
		"id:%s sub:001 dlvrd:000 submit date:%s done date:%s stat:%s err:%s text:",
		messageID, FormatDLRDate(submit), FormatDLRDate(done), stat, errCode,
	)
}
