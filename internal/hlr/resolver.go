package hlr

import (
	"github.com/pkg/errors"

	"github.com/nimasrn/hlr-gateway/internal/cache"
	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/internal/smpp"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
	"github.com/nimasrn/hlr-gateway/pkg/prom"
)

// Auditor records finished lookups for offline analysis and cache
// warmup. Implementations must be safe for concurrent use.
type Auditor interface {
	RecordLookup(result *model.ClassificationResult)
}

// Resolver classifies destination numbers. Classify never returns an
// error: timeouts and transport failures become TIMEOUT and ERROR
// classifications and flow through the decision policy like any other
// verdict.
type Resolver struct {
	cache   *cache.LookupCache
	client  Client
	auditor Auditor
}

func NewResolver(c *cache.LookupCache, client Client, auditor Auditor) *Resolver {
	return &Resolver{cache: c, client: client, auditor: auditor}
}

func (r *Resolver) Classify(addr string) *model.ClassificationResult {
	msisdn := smpp.NormalizeMSISDN(addr)

	if cached, found, err := r.cache.Get(msisdn); err != nil {
		// degraded cache still allows live lookups
		logger.Warn("[resolver] cache read failed, going live", "msisdn", msisdn, "error", err)
	} else if found {
		prom.IncCounterVec(prom.SystemHLR, prom.MetricRequestsTotal, "cache")
		return cached
	}

	result := r.live(msisdn)

	// TIMEOUT is transient, caching it would pin a flaky moment for the
	// whole TTL
	if result.Classification != model.ClassificationTimeout {
		if err := r.cache.Set(result); err != nil {
			logger.Warn("[resolver] cache write failed", "msisdn", msisdn, "error", err)
		}
	}

	if r.auditor != nil {
		go r.auditor.RecordLookup(result)
	}
	return result
}

func (r *Resolver) live(msisdn string) *model.ClassificationResult {
	resp, err := r.client.Lookup(msisdn)
	switch {
	case errors.Is(err, ErrLookupTimeout):
		prom.IncCounterVec(prom.SystemHLR, prom.MetricRequestsTotal, "timeout")
		return &model.ClassificationResult{
			MSISDN:         msisdn,
			Classification: model.ClassificationTimeout,
			DLRErrorCode:   defaultDLRError,
			Source:         model.SourceLive,
		}
	case err != nil:
		prom.IncCounterVec(prom.SystemHLR, prom.MetricRequestsTotal, "error")
		return &model.ClassificationResult{
			MSISDN:         msisdn,
			Classification: model.ClassificationError,
			DLRErrorCode:   defaultDLRError,
			Source:         model.SourceLive,
		}
	}

	prom.IncCounterVec(prom.SystemHLR, prom.MetricRequestsTotal, "ok")
	return classify(msisdn, resp)
}

const defaultDLRError = "000"

// classify applies the deliverability rule and the DLR error mapping to
// a raw lookup payload.
func classify(msisdn string, resp *LookupResponse) *model.ClassificationResult {
	result := &model.ClassificationResult{
		MSISDN:       msisdn,
		ErrorCode:    resp.Error,
		Status:       resp.Status,
		Present:      resp.Present,
		Type:         resp.Type,
		DLRErrorCode: mapDLRError(resp),
		Source:       model.SourceLive,
	}
	if resp.Ported {
		result.Ported = "yes"
	} else {
		result.Ported = "no"
	}

	if resp.Error == 0 && resp.Status == 0 && resp.Present == "yes" {
		result.Classification = model.ClassificationValid
	} else {
		result.Classification = model.ClassificationInvalid
	}
	return result
}

// mapDLRError picks the receipt error code for a raw lookup. Rows are
// ordered, the first match wins.
func mapDLRError(resp *LookupResponse) string {
	switch {
	case resp.Status == 1:
		return "003"
	case resp.Present == "no":
		return "001"
	case resp.Error == 2:
		return "002"
	case resp.Error == 191, resp.Error == 192, resp.Error == 193:
		return "000"
	default:
		return defaultDLRError
	}
}
