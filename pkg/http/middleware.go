package xhttp

import (
	"strings"
	"time"

	"github.com/nimasrn/hlr-gateway/pkg/logger"
)

const slowThreshold = 500 * time.Millisecond

var skipPaths = []string{"/metrics"}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				ctx.Error(StatusText(StatusInternalServerError), StatusInternalServerError)
				logger.Error("[xhttp] panic recovered", "error", err)
			}
		}()
		next(ctx)
	}
}

func RequestLoggerMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		method := string(ctx.Method())

		switch {
		case status >= 500:
			logger.Error("http_request", "status", status, "method", method, "path", path, "latency", latency)
		case latency > slowThreshold:
			logger.Warn("http_request_slow", "status", status, "method", method, "path", path, "latency", latency)
		default:
			logger.Debug("http_request", "status", status, "method", method, "path", path, "latency", latency)
		}
	}
}

func shouldSkip(path string) bool {
	for _, p := range skipPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
