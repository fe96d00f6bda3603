package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimasrn/hlr-gateway/internal/model"
)

func TestHLRLookupRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewHLRLookupRepository(db)
	ctx := context.Background()

	t.Run("create valid lookup", func(t *testing.T) {
		lookup := &model.HLRLookup{
			MSISDN:         "13476841841",
			Classification: "VALID",
			Present:        "yes",
			Ported:         "no",
			Type:           "mobile",
			DLRErrorCode:   "000",
			Source:         "LIVE",
		}

		created, err := repo.Create(ctx, lookup)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "13476841841", created.MSISDN)
		assert.Equal(t, "VALID", created.Classification)
		assert.False(t, created.CreatedAt.IsZero())
	})

	t.Run("create invalid lookup with mapped code", func(t *testing.T) {
		lookup := &model.HLRLookup{
			MSISDN:         "40722570240999",
			Classification: "INVALID",
			Present:        "no",
			DLRErrorCode:   "001",
			Source:         "LIVE",
		}

		created, err := repo.Create(ctx, lookup)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "001", created.DLRErrorCode)
	})
}

func TestHLRLookupRepository_LatestPerMSISDN(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewHLRLookupRepository(db)
	ctx := context.Background()

	// two lookups for the same number, only the newer one should come
	// back
	_, err := repo.Create(ctx, &model.HLRLookup{
		MSISDN: "13476841841", Classification: "INVALID", DLRErrorCode: "001", Source: "LIVE",
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.HLRLookup{
		MSISDN: "13476841841", Classification: "VALID", Present: "yes", DLRErrorCode: "000", Source: "LIVE",
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.HLRLookup{
		MSISDN: "40722570240", Classification: "INVALID", DLRErrorCode: "002", Source: "LIVE",
	})
	require.NoError(t, err)

	latest, err := repo.LatestPerMSISDN(ctx, time.Now().Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	byMSISDN := make(map[string]*model.HLRLookup, len(latest))
	for _, l := range latest {
		byMSISDN[l.MSISDN] = l
	}
	assert.Equal(t, "VALID", byMSISDN["13476841841"].Classification)
	assert.Equal(t, "INVALID", byMSISDN["40722570240"].Classification)
}

func TestHLRLookupRepository_LatestPerMSISDNCutoff(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewHLRLookupRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.HLRLookup{
		MSISDN: "13476841841", Classification: "VALID", Source: "LIVE",
	})
	require.NoError(t, err)

	latest, err := repo.LatestPerMSISDN(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestHLRLookupRepository_GetByMSISDN(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewHLRLookupRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, &model.HLRLookup{
			MSISDN: "13476841841", Classification: "VALID", Source: "LIVE",
		})
		require.NoError(t, err)
	}

	lookups, err := repo.GetByMSISDN(ctx, "13476841841", 2)
	require.NoError(t, err)
	assert.Len(t, lookups, 2)
	// newest first
	assert.Greater(t, lookups[0].ID, lookups[1].ID)
}

func TestHLRLookupRepository_CountByClassification(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewHLRLookupRepository(db)
	ctx := context.Background()

	for _, c := range []string{"VALID", "VALID", "INVALID", "TIMEOUT"} {
		_, err := repo.Create(ctx, &model.HLRLookup{
			MSISDN: "13476841841", Classification: c, Source: "LIVE",
		})
		require.NoError(t, err)
	}

	counts, err := repo.CountByClassification(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["VALID"])
	assert.Equal(t, int64(1), counts["INVALID"])
	assert.Equal(t, int64(1), counts["TIMEOUT"])
}
