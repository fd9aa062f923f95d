package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "gatepass:", nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "profile:S1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "profile:S1", map[string]string{"name": "x"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "profile:S1"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "profile:*"))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	repo := NewCacheRepository(client, "gatepass:", nil)
	defer repo.Close()

	var dest map[string]string
	err := repo.Get(context.Background(), "profile:S1", &dest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.Error(t, repo.Set(context.Background(), "profile:S1", map[string]string{}, time.Minute))
}
