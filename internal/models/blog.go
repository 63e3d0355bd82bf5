package models

import "time"

// PostStatus is the moderation state of a blog post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPending   PostStatus = "pending"
	PostPublished PostStatus = "published"
	PostRejected  PostStatus = "rejected"
)

// BlogPost is an article written by a member.
type BlogPost struct {
	ID             string     `db:"id" json:"id"`
	AuthorID       string     `db:"author_id" json:"author_id"`
	AuthorName     string     `db:"author_name" json:"author_name,omitempty"`
	ClusterID      *string    `db:"cluster_id" json:"cluster_id,omitempty"`
	Title          string     `db:"title" json:"title"`
	Slug           string     `db:"slug" json:"slug"`
	Content        string     `db:"content" json:"content"`
	Status         PostStatus `db:"status" json:"status"`
	ModerationNote *string    `db:"moderation_note" json:"moderation_note,omitempty"`
	ModeratedBy    *string    `db:"moderated_by" json:"moderated_by,omitempty"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// PostFilter narrows post listings.
type PostFilter struct {
	Status   *PostStatus
	AuthorID string
	Page     int
	PageSize int
}

// PostTransition is a conditional status change on a post.
type PostTransition struct {
	PostID      string
	From        PostStatus
	To          PostStatus
	Note        *string
	ModeratorID *string
	At          time.Time
}
