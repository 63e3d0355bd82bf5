package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
)

type fakeBlogSrv struct {
	blogService
	actor  string
	filter models.PostFilter
	slug   string
}

func (f *fakeBlogSrv) List(_ context.Context, actorID string, filter models.PostFilter) ([]models.BlogPost, *models.Pagination, error) {
	f.actor, f.filter = actorID, filter
	return nil, models.NewPagination(1, 20, 0), nil
}

func (f *fakeBlogSrv) GetBySlug(_ context.Context, actorID, slug string) (*models.BlogPost, error) {
	f.actor, f.slug = actorID, slug
	return &models.BlogPost{Slug: slug}, nil
}

func TestBlogListAuthorMe(t *testing.T) {
	svc := &fakeBlogSrv{}
	c, rec := newTestContext(http.MethodGet, "/posts?author=me&status=Draft", "s1")
	NewBlogHandler(svc).List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", svc.filter.AuthorID)
	require.NotNil(t, svc.filter.Status)
	assert.Equal(t, models.PostDraft, *svc.filter.Status)
}

func TestBlogGetReadsSlugFromSharedParam(t *testing.T) {
	svc := &fakeBlogSrv{}
	c, rec := newTestContext(http.MethodGet, "/posts/hello-world", "")
	c.Params = append(c.Params, ginParam("id", "hello-world"))
	NewBlogHandler(svc).Get(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello-world", svc.slug)
	assert.Equal(t, "", svc.actor)
}
