package cache

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
	"github.com/nimasrn/hlr-gateway/pkg/prom"
	"github.com/nimasrn/hlr-gateway/pkg/redis"
)

const keyPrefix = "hlr:"

// LookupCache stores classification results in Redis keyed by normalized
// msisdn. A TTL of zero disables caching entirely: every Get misses and
// every Set is dropped, which degrades the gateway to one live lookup
// per submit instead of breaking it.
type LookupCache struct {
	redis redis.RedisAdapter
	ttl   time.Duration
}

func New(adapter redis.RedisAdapter, ttl time.Duration) *LookupCache {
	return &LookupCache{redis: adapter, ttl: ttl}
}

// Get returns the cached result for a msisdn, or found=false on a miss.
// Redis errors are returned as errors, not misses, so the caller can
// decide whether a degraded cache should still allow live lookups.
func (c *LookupCache) Get(msisdn string) (*model.ClassificationResult, bool, error) {
	if c.ttl == 0 {
		return nil, false, nil
	}

	raw, err := c.redis.Get(keyPrefix + msisdn)
	if err == redis.NilError {
		prom.IncCounter(prom.SystemHLR, prom.MetricCacheMissesTotal)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "cache get")
	}

	var result model.ClassificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// a corrupt entry is treated as a miss and overwritten on the
		// next live lookup
		logger.Warn("[cache] dropping unreadable entry", "msisdn", msisdn, "error", err)
		prom.IncCounter(prom.SystemHLR, prom.MetricCacheMissesTotal)
		return nil, false, nil
	}

	prom.IncCounter(prom.SystemHLR, prom.MetricCacheHitsTotal)
	result.Source = model.SourceCache
	return &result, true, nil
}

// Set stores a classification result under the configured TTL.
func (c *LookupCache) Set(result *model.ClassificationResult) error {
	if c.ttl == 0 {
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "cache marshal")
	}
	if err := c.redis.Set(keyPrefix+result.MSISDN, raw, c.ttl); err != nil {
		return errors.Wrap(err, "cache set")
	}
	return nil
}

// Warm bulk-loads results, typically recent rows from the lookup audit
// table at startup. Existing entries are not overwritten so a fresher
// live result never loses to an audit row. Returns how many entries were
// actually written.
func (c *LookupCache) Warm(results []model.ClassificationResult) int {
	if c.ttl == 0 {
		return 0
	}

	loaded := 0
	for i := range results {
		r := &results[i]
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		ok, err := c.redis.SetNX(keyPrefix+r.MSISDN, raw, c.ttl)
		if err != nil {
			logger.Warn("[cache] warmup write failed", "msisdn", r.MSISDN, "error", err)
			continue
		}
		if ok {
			loaded++
		}
	}
	return loaded
}
