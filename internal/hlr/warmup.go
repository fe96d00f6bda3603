package hlr

import (
	"time"

	"github.com/nimasrn/hlr-gateway/internal/cache"
	"github.com/nimasrn/hlr-gateway/internal/model"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
)

// LookupHistory serves recent audited lookups for warmup.
type LookupHistory interface {
	RecentLookups(since time.Time, limit int) ([]model.ClassificationResult, error)
}

// WarmCache preloads the lookup cache from audit history so a restart
// does not turn into a thundering herd of live lookups. Failures are
// logged and swallowed, warmup is best effort.
func WarmCache(c *cache.LookupCache, history LookupHistory, days, limit int) {
	since := time.Now().AddDate(0, 0, -days)

	results, err := history.RecentLookups(since, limit)
	if err != nil {
		logger.Warn("[warmup] loading lookup history failed", "error", err)
		return
	}
	if len(results) == 0 {
		logger.Info("[warmup] no lookup history to preload")
		return
	}

	loaded := c.Warm(results)
	logger.Info("[warmup] cache preloaded", "candidates", len(results), "loaded", loaded)
}
