package main

import (
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LookupResult mirrors the per-number payload of the real HLR service.
type LookupResult struct {
	Error   int    `json:"error"`
	Status  int    `json:"status"`
	Present string `json:"present"`
	Ported  bool   `json:"ported"`
	Type    string `json:"type"`
}

// MockHLR simulates an HLR lookup provider. Outcomes are keyed on the
// msisdn suffix so test runs are deterministic:
//
//	...999  absent subscriber (present "no")
//	...888  lookup error 2
//	...777  subscriber status 1
//	...666  operator-determined barring (error 191)
//	...000  stalls past any sane client timeout
//
// everything else is a live, reachable subscriber.
type MockHLR struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	stallDelay time.Duration
	portedRate float64
	rng        *rand.Rand
}

func NewMockHLR(minDelay, maxDelay, stallDelay time.Duration, portedRate float64) *MockHLR {
	return &MockHLR{
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		stallDelay: stallDelay,
		portedRate: portedRate,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockHLR) lookup(msisdn string) LookupResult {
	time.Sleep(m.randomDelay())

	switch {
	case strings.HasSuffix(msisdn, "999"):
		return LookupResult{Present: "no", Type: "mobile"}
	case strings.HasSuffix(msisdn, "888"):
		return LookupResult{Error: 2, Present: "na"}
	case strings.HasSuffix(msisdn, "777"):
		return LookupResult{Status: 1, Present: "na", Type: "mobile"}
	case strings.HasSuffix(msisdn, "666"):
		return LookupResult{Error: 191, Present: "na"}
	case strings.HasSuffix(msisdn, "000"):
		time.Sleep(m.stallDelay)
		return LookupResult{Present: "yes", Type: "mobile"}
	default:
		return LookupResult{
			Present: "yes",
			Ported:  m.rng.Float64() < m.portedRate,
			Type:    "mobile",
		}
	}
}

func (m *MockHLR) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(m.maxDelay-m.minDelay)))
}

type Handler struct {
	hlr *MockHLR
}

func NewHandler(hlr *MockHLR) *Handler {
	return &Handler{hlr: hlr}
}

// Lookup serves the {key}/{secret}/{msisdn} query shape of the real
// provider. Credentials are accepted blindly, this is a simulator.
func (h *Handler) Lookup(c *gin.Context) {
	msisdn := c.Param("msisdn")
	if msisdn == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "msisdn is required"})
		return
	}

	start := time.Now()
	result := h.hlr.lookup(msisdn)

	log.Info().
		Str("msisdn", msisdn).
		Int("error", result.Error).
		Int("status", result.Status).
		Str("present", result.Present).
		Dur("duration", time.Since(start)).
		Msg("lookup served")

	c.JSON(http.StatusOK, gin.H{msisdn: result})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	router.GET("/live/json/:key/:secret/:msisdn", handler.Lookup)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 300*time.Millisecond)
	stallDelay := getEnvDuration("STALL_DELAY", 30*time.Second)
	portedRate := getEnvFloat("PORTED_RATE", 0.1)

	hlr := NewMockHLR(minDelay, maxDelay, stallDelay, portedRate)
	router := SetupRouter(NewHandler(hlr))

	log.Info().
		Str("port", port).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("mock HLR listening")

	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
