package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/src-permit-api/internal/dto"
	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
)

type memoryCacheRepo struct {
	values  map[string][]byte
	ttls    map[string]time.Duration
	deleted []string
	getErr  error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, 0, zap.NewNop(), true)

	var stats dto.PermitStats
	assert.False(t, cache.Get(context.Background(), "k", &stats))

	cache.Set(context.Background(), "k", dto.PermitStats{Active: 2, Total: 2}, 0)
	assert.Equal(t, time.Minute, repo.ttls["k"])
	require.True(t, cache.Get(context.Background(), "k", &stats))
	assert.Equal(t, 2, stats.Active)

	cache.Invalidate(context.Background(), "k")
	assert.False(t, cache.Get(context.Background(), "k", &stats))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, false)

	cache.Set(context.Background(), "k", 1, 0)
	assert.Empty(t, repo.values)
	var v int
	assert.False(t, cache.Get(context.Background(), "k", &v))

	var nilCache *CacheService
	assert.False(t, nilCache.Enabled())
	nilCache.Invalidate(context.Background(), "k")
}

func TestCacheServiceErrorsAreMisses(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("redis down")
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var v int
	assert.False(t, cache.Get(context.Background(), "k", &v))
}

func TestPermitStatsServedFromCache(t *testing.T) {
	f := newPermitFixture(t, true, activePermit(t, 1, "26-K7Q2", permitTestNow.Add(time.Hour)))
	f.svc.cache = NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)

	first, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Active)

	// A write the service did not make is invisible until invalidation.
	f.repo.permits[1].Status = "revoked"
	cached, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Active)

	_, err = f.svc.Revoke(context.Background(), 1, 1)
	require.NoError(t, err)
	fresh, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.Active)
	assert.Equal(t, 1, fresh.Revoked)
}
