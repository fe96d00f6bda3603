package model

// Classification is the verdict the gateway assigns to a number after an
// HLR lookup. VALID is deliberately strict: any error code, any non-zero
// status, or a "present" flag other than "yes" makes a number INVALID.
type Classification string

const (
	ClassificationValid   Classification = "VALID"
	ClassificationInvalid Classification = "INVALID"
	ClassificationError   Classification = "ERROR"
	ClassificationTimeout Classification = "TIMEOUT"
)

// Lookup result sources.
const (
	SourceCache = "CACHE"
	SourceLive  = "LIVE"
)

// ClassificationResult is the normalized outcome of an HLR lookup for a
// single MSISDN, plus the raw fields the classification was derived from.
type ClassificationResult struct {
	MSISDN         string         `json:"msisdn"`
	Classification Classification `json:"classification"`
	ErrorCode      int            `json:"error_code"`
	Status         int            `json:"status"`
	Present        string         `json:"present"`
	Ported         string         `json:"ported,omitempty"`
	Type           string         `json:"type,omitempty"`
	DLRErrorCode   string         `json:"dlr_error_code"`
	Source         string         `json:"source"`
}

// Valid reports whether the number was classified deliverable.
func (r *ClassificationResult) Valid() bool {
	return r.Classification == ClassificationValid
}
