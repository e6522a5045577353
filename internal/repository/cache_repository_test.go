package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "permits")
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "stats", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "stats", map[string]int{"active": 1}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "stats"))
	assert.Equal(t, "permits:stats", repo.key("stats"))
	assert.Equal(t, "stats", NewCacheRepository(nil, "").key("stats"))
}
