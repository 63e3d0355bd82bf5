package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	"github.com/swebuk/portal-api/internal/repository"
	"github.com/swebuk/portal-api/internal/workflow"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/slug"
)

const (
	slugMaxLen   = 80
	slugAttempts = 3
)

type postRepository interface {
	Create(ctx context.Context, post *models.BlogPost) error
	UpdateContent(ctx context.Context, post *models.BlogPost) error
	FindByID(ctx context.Context, id string) (*models.BlogPost, error)
	FindBySlug(ctx context.Context, slug string) (*models.BlogPost, error)
	List(ctx context.Context, filter models.PostFilter) ([]models.BlogPost, int, error)
	Transition(ctx context.Context, tr models.PostTransition) error
}

// PostRequest creates or edits a post.
type PostRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	Content   string  `json:"content" validate:"required"`
	ClusterID *string `json:"cluster_id"`
	Submit    bool    `json:"submit"`
}

// ModerationRequest publishes or rejects a pending post.
type ModerationRequest struct {
	Status string  `json:"status" validate:"required,oneof=published rejected"`
	Note   *string `json:"note" validate:"omitempty,max=2000"`
}

// BlogService runs authoring and moderation of blog posts.
type BlogService struct {
	repo      postRepository
	profiles  profileFinder
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBlogService constructs a BlogService.
func NewBlogService(repo postRepository, profiles profileFinder, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *BlogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlogService{repo: repo, profiles: profiles, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// Create saves a draft, or submits it for moderation straight away.
func (s *BlogService) Create(ctx context.Context, actorID string, req PostRequest) (*models.BlogPost, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if !subject.Active || subject.ID == "" {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	post := &models.BlogPost{
		AuthorID:  subject.ID,
		ClusterID: blankToNil(req.ClusterID),
		Title:     req.Title,
		Content:   req.Content,
		Status:    models.PostDraft,
	}
	if req.Submit {
		post.Status = models.PostPending
	}

	base := slug.Make(req.Title, slugMaxLen)
	post.Slug = base
	for attempt := 1; ; attempt++ {
		err = s.repo.Create(ctx, post)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == slugAttempts {
			return nil, appErrors.Internal(err, "failed to create post")
		}
		post.ID = ""
		post.Slug = slug.WithSuffix(base, uuid.NewString()[:6], slugMaxLen)
	}

	if post.Status == models.PostPending {
		s.invalidate(ctx)
	}
	return post, nil
}

// Update edits a draft or rejected post owned by the caller.
func (s *BlogService) Update(ctx context.Context, actorID, id string, req PostRequest) (*models.BlogPost, error) {
	subject, post, err := s.loadForActor(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanEditPost(subject, post) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can edit an unpublished post")
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	post.Title = req.Title
	post.Content = req.Content
	post.ClusterID = blankToNil(req.ClusterID)
	if err := s.repo.UpdateContent(ctx, post); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only draft or rejected posts can be edited")
		}
		return nil, appErrors.Internal(err, "failed to update post")
	}
	if req.Submit {
		return s.Submit(ctx, actorID, id)
	}
	return post, nil
}

// Submit sends a draft or rejected post to the moderation queue.
func (s *BlogService) Submit(ctx context.Context, actorID, id string) (*models.BlogPost, error) {
	subject, post, err := s.loadForActor(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != subject.ID || !subject.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author can submit a post")
	}
	if err := s.transition(ctx, post, models.PostPending, nil, nil); err != nil {
		return nil, err
	}
	return post, nil
}

// Moderate publishes or rejects a pending post.
func (s *BlogService) Moderate(ctx context.Context, actorID, id string, req ModerationRequest) (*models.BlogPost, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be published or rejected")
	}
	subject, post, err := s.loadForActor(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(subject, policy.ActionPostModerate); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, post, models.PostStatus(req.Status), blankToNil(req.Note), &subject.ID); err != nil {
		return nil, err
	}
	return post, nil
}

// List returns posts. Published posts are public; other statuses need a
// moderator, or the caller listing their own posts.
func (s *BlogService) List(ctx context.Context, actorID string, filter models.PostFilter) ([]models.BlogPost, *models.Pagination, error) {
	published := models.PostPublished
	if filter.Status == nil {
		filter.Status = &published
	}
	if *filter.Status != published {
		subject, err := loadSubject(ctx, s.profiles, actorID)
		if err != nil {
			return nil, nil, err
		}
		own := filter.AuthorID != "" && filter.AuthorID == subject.ID && subject.Active
		if !own && !policy.Can(subject, policy.ActionPostModerate) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can list unpublished posts")
		}
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list posts")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetBySlug returns a post. Unpublished posts are visible to the author and moderators.
func (s *BlogService) GetBySlug(ctx context.Context, actorID, postSlug string) (*models.BlogPost, error) {
	post, err := s.repo.FindBySlug(ctx, postSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Internal(err, "failed to load post")
	}
	if post.Status == models.PostPublished {
		return post, nil
	}
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if (post.AuthorID == subject.ID && subject.Active) || policy.Can(subject, policy.ActionPostModerate) {
		return post, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
}

func (s *BlogService) transition(ctx context.Context, post *models.BlogPost, to models.PostStatus, note, moderatorID *string) error {
	if err := workflow.PostModeration.Transition(post.Status, to); err != nil {
		return err
	}
	tr := models.PostTransition{PostID: post.ID, From: post.Status, To: to, Note: note, ModeratorID: moderatorID, At: s.now().UTC()}
	if err := s.repo.Transition(ctx, tr); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "post status changed concurrently, reload and retry")
		}
		return appErrors.Internal(err, "failed to update post status")
	}
	post.Status = to
	if note != nil {
		post.ModerationNote = note
	}
	if moderatorID != nil {
		post.ModeratedBy = moderatorID
	}
	if to == models.PostPublished {
		post.PublishedAt = &tr.At
	}
	s.invalidate(ctx)
	return nil
}

func (s *BlogService) loadForActor(ctx context.Context, actorID, id string) (policy.Subject, *models.BlogPost, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return policy.Subject{}, nil, err
	}
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subject, nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return subject, nil, appErrors.Internal(err, "failed to load post")
	}
	return subject, post, nil
}

func (s *BlogService) validate(req *PostRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title (max 200 characters) and content are required")
	}
	return nil
}

func (s *BlogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.DashboardPattern); err != nil {
		s.logger.Warn("dashboard invalidation failed", zap.Error(err))
	}
}
