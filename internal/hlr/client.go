package hlr

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/nimasrn/hlr-gateway/pkg/logger"
	"github.com/nimasrn/hlr-gateway/pkg/prom"
)

var (
	// ErrLookupTimeout marks a lookup that exceeded the configured
	// deadline. The resolver maps it to a TIMEOUT classification, it is
	// never surfaced to a session as an error.
	ErrLookupTimeout = errors.New("hlr: lookup timed out")
	// ErrLookupTransport covers everything else that went wrong talking
	// to the lookup service, connect failures, bad status, bad JSON.
	ErrLookupTransport = errors.New("hlr: lookup transport error")
)

// LookupResponse is the per-number payload of the lookup service.
// Anything outside this shape classifies as ERROR upstream.
type LookupResponse struct {
	Error   int    `json:"error"`
	Status  int    `json:"status"`
	Present string `json:"present"`
	Ported  bool   `json:"ported"`
	Type    string `json:"type"`
}

// Client performs one live HLR lookup.
type Client interface {
	Lookup(msisdn string) (*LookupResponse, error)
}

type httpClient struct {
	base    string
	key     string
	secret  string
	timeout time.Duration
	client  *fasthttp.Client
}

// NewClient builds the production lookup client. The URL layout is
// {base}/{key}/{secret}/{msisdn}.
func NewClient(base, key, secret string, timeout time.Duration) Client {
	return &httpClient{
		base:    base,
		key:     key,
		secret:  secret,
		timeout: timeout,
		client: &fasthttp.Client{
			MaxConnsPerHost:     512,
			MaxIdleConnDuration: 30 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
	}
}

func (c *httpClient) Lookup(msisdn string) (*LookupResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + "/" + c.key + "/" + c.secret + "/" + msisdn)
	req.Header.SetMethod(fasthttp.MethodGet)

	start := time.Now()
	err := c.client.DoDeadline(req, resp, start.Add(c.timeout))
	prom.AddHistogram(prom.SystemHLR, prom.MetricLatencySeconds, time.Since(start).Seconds())

	if err != nil {
		if err == fasthttp.ErrTimeout || err == fasthttp.ErrDialTimeout {
			return nil, ErrLookupTimeout
		}
		logger.Warn("[hlr] lookup request failed", "msisdn", msisdn, "error", err)
		return nil, errors.Wrap(ErrLookupTransport, err.Error())
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		logger.Warn("[hlr] lookup bad status", "msisdn", msisdn, "status", resp.StatusCode())
		return nil, errors.Wrapf(ErrLookupTransport, "status %d", resp.StatusCode())
	}

	// the service keys the payload by the queried msisdn
	var envelope map[string]LookupResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, errors.Wrap(ErrLookupTransport, err.Error())
	}
	r, ok := envelope[msisdn]
	if !ok {
		return nil, errors.Wrapf(ErrLookupTransport, "response missing entry for %s", msisdn)
	}
	return &r, nil
}
