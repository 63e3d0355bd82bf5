package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/swebuk/portal-api/internal/models"
)

const postSelect = `SELECT p.id, p.author_id, COALESCE(a.full_name, '') AS author_name, p.cluster_id, p.title, p.slug, p.content, p.status, p.moderation_note, p.moderated_by, p.published_at, p.created_at, p.updated_at FROM blog_posts p LEFT JOIN profiles a ON a.id = p.author_id`

// PostRepository persists blog posts.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates a new PostRepository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a post. A taken slug returns ErrDuplicate.
func (r *PostRepository) Create(ctx context.Context, post *models.BlogPost) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	post.CreatedAt, post.UpdatedAt = now, now
	const query = `INSERT INTO blog_posts (id, author_id, cluster_id, title, slug, content, status, created_at, updated_at) VALUES (:id, :author_id, :cluster_id, :title, :slug, :content, :status, :created_at, :updated_at) ON CONFLICT (slug) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, post)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrDuplicate
	}
	return nil
}

// UpdateContent rewrites a draft or rejected post.
func (r *PostRepository) UpdateContent(ctx context.Context, post *models.BlogPost) error {
	post.UpdatedAt = time.Now().UTC()
	const query = `UPDATE blog_posts SET title = :title, content = :content, cluster_id = :cluster_id, updated_at = :updated_at WHERE id = :id AND status IN ('draft', 'rejected')`
	res, err := r.db.NamedExecContext(ctx, query, post)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrStaleState
	}
	return nil
}

// FindByID returns a post by identifier.
func (r *PostRepository) FindByID(ctx context.Context, id string) (*models.BlogPost, error) {
	return r.getOne(ctx, "find post", postSelect+` WHERE p.id = $1`, id)
}

// FindBySlug returns a post by slug.
func (r *PostRepository) FindBySlug(ctx context.Context, slug string) (*models.BlogPost, error) {
	return r.getOne(ctx, "find post by slug", postSelect+` WHERE p.slug = $1`, slug)
}

func (r *PostRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*models.BlogPost, error) {
	var post models.BlogPost
	if err := r.db.GetContext(ctx, &post, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &post, nil
}

// List returns a page of posts, newest first.
func (r *PostRepository) List(ctx context.Context, filter models.PostFilter) ([]models.BlogPost, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)))
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		conditions = append(conditions, fmt.Sprintf("p.author_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY COALESCE(p.published_at, p.created_at) DESC LIMIT %d OFFSET %d", postSelect, where, pageSize, (page-1)*pageSize)

	var items []models.BlogPost
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM blog_posts p`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	return items, total, nil
}

// Transition applies a conditional status change. ErrStaleState means the post
// was no longer in the expected status.
func (r *PostRepository) Transition(ctx context.Context, tr models.PostTransition) error {
	if tr.At.IsZero() {
		tr.At = time.Now().UTC()
	}
	var publishedAt *time.Time
	if tr.To == models.PostPublished {
		publishedAt = &tr.At
	}
	const query = `UPDATE blog_posts SET status = $3, moderation_note = COALESCE($4, moderation_note), moderated_by = COALESCE($5, moderated_by), published_at = COALESCE($6, published_at), updated_at = $7 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, tr.PostID, tr.From, tr.To, tr.Note, tr.ModeratorID, publishedAt, tr.At)
	if err != nil {
		return fmt.Errorf("transition post: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrStaleState
	}
	return nil
}

// CountPending returns the moderation backlog.
func (r *PostRepository) CountPending(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM blog_posts WHERE status = 'pending'`); err != nil {
		return 0, fmt.Errorf("count pending posts: %w", err)
	}
	return total, nil
}
