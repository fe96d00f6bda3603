package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nimasrn/hlr-gateway/internal/audit"
	"github.com/nimasrn/hlr-gateway/internal/cache"
	"github.com/nimasrn/hlr-gateway/internal/hlr"
	"github.com/nimasrn/hlr-gateway/internal/policy"
	"github.com/nimasrn/hlr-gateway/internal/repository"
	"github.com/nimasrn/hlr-gateway/internal/scheduler"
	"github.com/nimasrn/hlr-gateway/internal/server"
	"github.com/nimasrn/hlr-gateway/pkg/pg"
	"github.com/nimasrn/hlr-gateway/pkg/redis"
)

const (
	testSystemID = "smppclient1"
	testPassword = "password"
)

type fakeHLRService struct {
	server  *httptest.Server
	lookups atomic.Int64
	numbers map[string]hlr.LookupResponse
}

func newFakeHLRService(numbers map[string]hlr.LookupResponse) *fakeHLRService {
	f := &fakeHLRService{numbers: numbers}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lookups.Add(1)
		parts := strings.Split(r.URL.Path, "/")
		msisdn := parts[len(parts)-1]

		resp, ok := f.numbers[msisdn]
		if !ok {
			resp = hlr.LookupResponse{Error: 1, Present: "na"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]hlr.LookupResponse{msisdn: resp})
	}))
	return f
}

type TestEnvironment struct {
	DB          *pg.DB
	Redis       *miniredis.Miniredis
	HLR         *fakeHLRService
	LookupRepo  *repository.HLRLookupRepository
	ReceiptRepo *repository.DeliveryReceiptRepository
	Server      *server.Server
	Scheduler   *scheduler.Scheduler
}

func setupE2EEnvironment(t *testing.T, variant string, numbers map[string]hlr.LookupResponse) *TestEnvironment {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	err = db.AutoMigrate(&repository.HLRLookupEntity{}, &repository.DeliveryReceiptEntity{})
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()
	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")
	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()
	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter("e2e-"+t.Name(), "e2e", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	fakeHLR := newFakeHLRService(numbers)
	t.Cleanup(fakeHLR.server.Close)

	lookupRepo := repository.NewHLRLookupRepository(pgDB)
	receiptRepo := repository.NewDeliveryReceiptRepository(pgDB)
	recorder := audit.NewRecorder(lookupRepo, receiptRepo)

	lookupCache := cache.New(adapter, time.Hour)
	client := hlr.NewClient(fakeHLR.server.URL, "key", "secret", 2*time.Second)
	resolver := hlr.NewResolver(lookupCache, client, recorder)

	pol, err := policy.ForVariant(variant, "valid")
	require.NoError(t, err)

	srv := server.New(server.Options{
		ListenAddr:      "127.0.0.1:0",
		SystemID:        testSystemID,
		Password:        testPassword,
		BindAttempts:    2,
		MaxDecodeErrors: 3,
		DLRDelay:        50 * time.Millisecond,
		DLRRespTimeout:  time.Second,
	}, resolver, pol, nil)

	sched := scheduler.New(srv, recorder, scheduler.Options{
		Workers:      4,
		TickInterval: 10 * time.Millisecond,
		RetryBackoff: 20 * time.Millisecond,
	})
	srv.SetDeliveries(sched)
	sched.Start()
	t.Cleanup(sched.Stop)

	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &TestEnvironment{
		DB:          pgDB,
		Redis:       mr,
		HLR:         fakeHLR,
		LookupRepo:  lookupRepo,
		ReceiptRepo: receiptRepo,
		Server:      srv,
		Scheduler:   sched,
	}
}
