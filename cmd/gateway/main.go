package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/nimasrn/hlr-gateway/internal/audit"
	"github.com/nimasrn/hlr-gateway/internal/cache"
	"github.com/nimasrn/hlr-gateway/internal/config"
	"github.com/nimasrn/hlr-gateway/internal/handlers"
	"github.com/nimasrn/hlr-gateway/internal/hlr"
	"github.com/nimasrn/hlr-gateway/internal/policy"
	"github.com/nimasrn/hlr-gateway/internal/repository"
	"github.com/nimasrn/hlr-gateway/internal/scheduler"
	"github.com/nimasrn/hlr-gateway/internal/server"
	xhttp "github.com/nimasrn/hlr-gateway/pkg/http"
	"github.com/nimasrn/hlr-gateway/pkg/logger"
	"github.com/nimasrn/hlr-gateway/pkg/pg"
	"github.com/nimasrn/hlr-gateway/pkg/prom"
	"github.com/nimasrn/hlr-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck())
	}

	logger.Info("starting hlr gateway",
		"version", version, "commit", commit, "built", date,
		"variant", config.Get().PolicyVariant,
	)

	var db *pg.DB
	if config.Get().DBEnabled {
		readConf := pg.Config{
			User:     config.Get().PostgresReadUser,
			Host:     config.Get().PostgresReadHost,
			Port:     config.Get().PostgresReadPort,
			Password: config.Get().PostgresReadPassword,
			Database: config.Get().PostgresReadDatabase,
		}
		writeConf := pg.Config{
			User:     config.Get().PostgresWriteUser,
			Host:     config.Get().PostgresWriteHost,
			Port:     config.Get().PostgresWritePort,
			Password: config.Get().PostgresWritePassword,
			Database: config.Get().PostgresWriteDatabase,
		}

		pgDebug := false
		if config.Get().AppEnv == "dev" {
			pgDebug = true
		}
		db, err = pg.CreateReadWrite(readConf, writeConf, pgDebug)
		if err != nil {
			logger.Error("failed connecting to pg", "error", err)
			return
		}
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	lookupCache := cache.New(redisAdap, config.Get().HLRCacheTTL)

	var recorder *audit.Recorder
	var lookupRepo *repository.HLRLookupRepository
	var receiptRepo *repository.DeliveryReceiptRepository
	if db != nil {
		lookupRepo = repository.NewHLRLookupRepository(db)
		receiptRepo = repository.NewDeliveryReceiptRepository(db)
		recorder = audit.NewRecorder(lookupRepo, receiptRepo)

		if config.Get().CacheWarmupEnabled {
			hlr.WarmCache(lookupCache, recorder,
				config.Get().CacheWarmupDays, config.Get().CacheWarmupLimit)
		}
	}

	client := hlr.NewClient(
		config.Get().HLRBaseURL,
		config.Get().HLRAPIKey,
		config.Get().HLRAPISecret,
		config.Get().HLRTimeout,
	)

	var lookupAuditor hlr.Auditor
	var receiptAuditor scheduler.ReceiptAuditor
	if recorder != nil {
		lookupAuditor = recorder
		receiptAuditor = recorder
	}
	resolver := hlr.NewResolver(lookupCache, client, lookupAuditor)

	pol, err := policy.ForVariant(config.Get().PolicyVariant, config.Get().HLRTimeoutClass)
	if err != nil {
		logger.Error("failed to build policy", "error", err)
		return
	}

	smppServer := server.New(server.Options{
		ListenAddr:      config.Get().SMPPListenAddr,
		SystemID:        config.Get().SMPPSystemID,
		Password:        config.Get().SMPPPassword,
		BindAttempts:    config.Get().SMPPBindAttempts,
		MaxDecodeErrors: config.Get().SMPPMaxDecodeErrors,
		DLRDelay:        config.Get().DLRDelay,
		DLRRespTimeout:  config.Get().DLRRespTimeout,
	}, resolver, pol, nil)

	sched := scheduler.New(smppServer, receiptAuditor, scheduler.Options{
		Workers:      16,
		TickInterval: 100 * time.Millisecond,
		RetryBackoff: config.Get().DLRRetryBackoff,
	})
	smppServer.SetDeliveries(sched)
	sched.Start()

	if err := smppServer.Start(); err != nil {
		logger.Error("failed to start smpp server", "error", err)
		return
	}

	if config.Get().MetricsEnabled {
		go serveAdmin(db, redisAdap, lookupRepo, receiptRepo, smppServer, sched)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := smppServer.Shutdown(ctx); err != nil {
		logger.Warn("smpp shutdown incomplete", "error", err)
	}
	sched.Stop()
}

type liveStats struct {
	srv   *server.Server
	sched *scheduler.Scheduler
}

func (l liveStats) ActiveSessions() int    { return l.srv.ActiveSessions() }
func (l liveStats) PendingDeliveries() int { return l.sched.Pending() }

type pgChecker struct {
	db *pg.DB
}

func (p pgChecker) Ping(ctx context.Context) error { return p.db.Healthcheck(ctx) }

func serveAdmin(
	db *pg.DB,
	redisAdap redis.RedisAdapter,
	lookupRepo *repository.HLRLookupRepository,
	receiptRepo *repository.DeliveryReceiptRepository,
	smppServer *server.Server,
	sched *scheduler.Scheduler,
) {
	s := xhttp.CreateServer()
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)

	s.GET(config.Get().MetricsPath, fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	checks := map[string]handlers.HealthChecker{"redis": redisAdap}
	if db != nil {
		checks["postgres"] = pgChecker{db: db}
	}

	grp := s.Group("/api")
	handlers.RegisterHealthRoutes(grp, handlers.NewHealthHandler(checks))

	var lookups handlers.LookupStats
	var receipts handlers.ReceiptStats
	if lookupRepo != nil {
		lookups = lookupRepo
	}
	if receiptRepo != nil {
		receipts = receiptRepo
	}
	handlers.RegisterStatsRoutes(grp, handlers.NewStatsHandler(lookups, receipts, liveStats{srv: smppServer, sched: sched}))

	s.CloseOnSignal()
	if err := s.ListenAndServe(config.Get().MetricsAddr); err != nil {
		logger.Error("admin server stopped", "error", err)
	}
}

// healthcheck probes the SMPP listen socket, used as a container
// liveness command.
func healthcheck() int {
	addr := config.Get().SMPPListenAddr
	if strings.HasPrefix(addr, "0.0.0.0") {
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		logger.Error("healthcheck failed", "addr", addr, "error", err)
		return 1
	}
	_ = conn.Close()
	return 0
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
