package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "dashboard:u1", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "dashboard:u1", map[string]int{"a": 1}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "dashboard:*"))
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}
