package models

import "time"

// FYPStatus is the lifecycle state of a final year project.
type FYPStatus string

const (
	FYPStatusProposalSubmitted FYPStatus = "proposal_submitted"
	FYPStatusProposalApproved  FYPStatus = "proposal_approved"
	FYPStatusInProgress        FYPStatus = "in_progress"
	FYPStatusCompleted         FYPStatus = "completed"
)

// FinalYearProject is the single capstone record owned by a level 400 student.
type FinalYearProject struct {
	ID                 string    `db:"id" json:"id"`
	StudentID          string    `db:"student_id" json:"student_id"`
	SupervisorID       *string   `db:"supervisor_id" json:"supervisor_id,omitempty"`
	Title              string    `db:"title" json:"title"`
	Description        string    `db:"description" json:"description"`
	Status             FYPStatus `db:"status" json:"status"`
	ProgressPercentage int       `db:"progress_percentage" json:"progress_percentage"`
	GithubRepoURL      *string   `db:"github_repo_url" json:"github_repo_url,omitempty"`
	StudentName        string    `db:"student_name" json:"student_name,omitempty"`
	SupervisorName     *string   `db:"supervisor_name" json:"supervisor_name,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// FYPFilter narrows project listings.
type FYPFilter struct {
	Status       *FYPStatus
	SupervisorID string
	Unassigned   bool
	Search       string
	Page         int
	PageSize     int
}

// SubmissionType tags what a document submission is.
type SubmissionType string

const (
	SubmissionProposal       SubmissionType = "proposal"
	SubmissionChapter1       SubmissionType = "chapter_1"
	SubmissionChapter2       SubmissionType = "chapter_2"
	SubmissionChapter3       SubmissionType = "chapter_3"
	SubmissionChapter4       SubmissionType = "chapter_4"
	SubmissionChapter5       SubmissionType = "chapter_5"
	SubmissionFinalThesis    SubmissionType = "final_thesis"
	SubmissionProgressReport SubmissionType = "progress_report"
	SubmissionChapterDraft   SubmissionType = "chapter_draft"
)

// Valid reports whether t is a known submission type.
func (t SubmissionType) Valid() bool {
	switch t {
	case SubmissionProposal, SubmissionChapter1, SubmissionChapter2, SubmissionChapter3,
		SubmissionChapter4, SubmissionChapter5, SubmissionFinalThesis, SubmissionProgressReport,
		SubmissionChapterDraft:
		return true
	}
	return false
}

// SubmissionStatus is the review state of one submission version.
type SubmissionStatus string

const (
	SubmissionPending       SubmissionStatus = "pending"
	SubmissionApproved      SubmissionStatus = "approved"
	SubmissionNeedsRevision SubmissionStatus = "needs_revision"
	SubmissionRejected      SubmissionStatus = "rejected"
)

// Submission is one version of a document in an FYP's submission ledger.
type Submission struct {
	ID                 string           `db:"id" json:"id"`
	FYPID              string           `db:"fyp_id" json:"fyp_id"`
	SubmissionType     SubmissionType   `db:"submission_type" json:"submission_type"`
	Title              string           `db:"title" json:"title"`
	Description        *string          `db:"description" json:"description,omitempty"`
	FileURL            *string          `db:"file_url" json:"file_url,omitempty"`
	FileName           *string          `db:"file_name" json:"file_name,omitempty"`
	FileSize           *int64           `db:"file_size" json:"file_size,omitempty"`
	Status             SubmissionStatus `db:"status" json:"status"`
	VersionNumber      int              `db:"version_number" json:"version_number"`
	IsLatestVersion    bool             `db:"is_latest_version" json:"is_latest_version"`
	PreviousVersionID  *string          `db:"previous_version_id" json:"previous_version_id,omitempty"`
	SupervisorFeedback *string          `db:"supervisor_feedback" json:"supervisor_feedback,omitempty"`
	ReviewedBy         *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	SubmittedAt        time.Time        `db:"submitted_at" json:"submitted_at"`
	ReviewedAt         *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// SubmissionReview is the persisted outcome of a staff review.
type SubmissionReview struct {
	SubmissionID string
	Status       SubmissionStatus
	Feedback     string
	ReviewerID   string
	ReviewedAt   time.Time
	// CascadeStatus, when set, is written to the parent FYP in the same transaction.
	CascadeStatus *FYPStatus
}

// SubmissionDownload is a time-limited or public link to a stored document.
type SubmissionDownload struct {
	URL       string     `json:"url"`
	FileName  string     `json:"file_name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
