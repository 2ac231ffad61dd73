package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

func newTestCache(t *testing.T) (*LookupCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewLookupCache(client, 5*time.Minute), mr
}

func TestLookupCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	rows := []CachedSecurity{
		{SecurityID: 1, SecurityCode: "SBER", BoardCode: "TQBR", Name: "Sberbank"},
		{SecurityID: 2, SecurityCode: "SBERP", BoardCode: "TQBR", Name: "Sberbank pref"},
	}
	require.NoError(t, cache.SaveSecurities(ctx, "SBER", "TQBR", rows))

	got, hit, err := cache.GetSecurities(ctx, "sber", "tqbr")
	require.NoError(t, err)
	assert.True(t, hit, "keys are case-insensitive")
	assert.Equal(t, rows, got)

	_, hit, err = cache.GetSecurities(ctx, "GAZP", "TQBR")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLookupCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SaveSecurities(ctx, "SBER", "TQBR", []CachedSecurity{{SecurityID: 1}}))
	mr.FastForward(6 * time.Minute)

	_, hit, err := cache.GetSecurities(ctx, "SBER", "TQBR")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestResultRecorderCapturesLookup(t *testing.T) {
	cache, _ := newTestCache(t)
	rec := NewResultRecorder(cache, nil)
	ctx := context.Background()

	rec.Track(7, "SBER", "TQBR")
	rec.Observe(ctx, &domain.SecurityMessage{
		Header:       domain.Header{OriginalTxID: 7},
		SecurityID:   1,
		SecurityCode: "SBER",
		BoardCode:    "TQBR",
	})
	// Frames for untracked lookups are ignored.
	rec.Observe(ctx, &domain.SecurityMessage{Header: domain.Header{OriginalTxID: 99}, SecurityID: 5})
	rec.Observe(ctx, &domain.SecurityLookupResultMessage{Header: domain.Header{OriginalTxID: 7}})

	rows, hit, err := rec.GetSecurities(ctx, "SBER", "TQBR")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, rows, 1)
	assert.Equal(t, "SBER", rows[0].SecurityCode)
}

func TestResultRecorderSkipsFailedLookup(t *testing.T) {
	cache, _ := newTestCache(t)
	rec := NewResultRecorder(cache, nil)
	ctx := context.Background()

	rec.Track(7, "SBER", "TQBR")
	rec.Observe(ctx, &domain.SecurityLookupResultMessage{
		Header: domain.Header{OriginalTxID: 7, Error: assert.AnError},
	})

	_, hit, err := rec.GetSecurities(ctx, "SBER", "TQBR")
	require.NoError(t, err)
	assert.False(t, hit)
}
