package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
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
	"github.com/swebuk/portal-api/pkg/export"
	"github.com/swebuk/portal-api/pkg/messaging"
	"github.com/swebuk/portal-api/pkg/storage"
)

type fypRepository interface {
	CreateProposal(ctx context.Context, fyp *models.FinalYearProject, document *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.FinalYearProject, error)
	FindByStudent(ctx context.Context, studentID string) (*models.FinalYearProject, error)
	List(ctx context.Context, filter models.FYPFilter) ([]models.FinalYearProject, int, error)
	ListAll(ctx context.Context, filter models.FYPFilter) ([]models.FinalYearProject, error)
	UpdateProgress(ctx context.Context, id string, progress int, repoURL *string) error
	UpdateStatus(ctx context.Context, id string, from, to models.FYPStatus) error
	AssignSupervisor(ctx context.Context, id, supervisorID string, audit *models.AuditLog) error
}

type submissionRepository interface {
	CreateVersion(ctx context.Context, sub *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	ListHistory(ctx context.Context, fypID string, kind *models.SubmissionType) ([]models.Submission, error)
	Review(ctx context.Context, review models.SubmissionReview, audit *models.AuditLog) (*models.Submission, error)
}

type downloadSigner interface {
	Generate(resourceID, key string) (string, time.Time, error)
}

// ProposalRequest creates the caller's final year project.
type ProposalRequest struct {
	Title       string  `json:"title" validate:"required,min=10,max=200"`
	Description string  `json:"description" validate:"required,min=50"`
	Document    *Upload `json:"-"`
}

// SubmissionRequest adds a document version to a project.
type SubmissionRequest struct {
	FYPID          string  `json:"fyp_id" validate:"required"`
	SubmissionType string  `json:"submission_type" validate:"required"`
	Title          string  `json:"title" validate:"required,max=200"`
	Description    *string `json:"description" validate:"omitempty,max=5000"`
	File           *Upload `json:"-"`
}

// ReviewRequest records a staff decision on a submission.
type ReviewRequest struct {
	Status   string `json:"status" validate:"required,oneof=approved needs_revision rejected"`
	Feedback string `json:"feedback" validate:"max=10000"`
}

// ProgressRequest updates project progress.
type ProgressRequest struct {
	ProgressPercentage *int    `json:"progress_percentage" validate:"required,min=0,max=100"`
	GithubRepoURL      *string `json:"github_repo_url" validate:"omitempty,url"`
}

// ExportFile is a rendered export ready to stream.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// FYPConfig tunes uploads and download links.
type FYPConfig struct {
	Upload       UploadPolicy
	DownloadPath string
}

// FYPServiceParams groups constructor dependencies.
type FYPServiceParams struct {
	Projects    fypRepository
	Submissions submissionRepository
	Profiles    profileFinder
	Store       storage.ObjectStore
	Signer      downloadSigner
	Exporter    *export.Renderer
	Cache       cacheInvalidator
	Notifier    notifier
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Config      FYPConfig
}

// FYPService runs the final year project workflow: proposal, versioned
// submissions, review and supervision.
type FYPService struct {
	projects    fypRepository
	submissions submissionRepository
	profiles    profileFinder
	store       storage.ObjectStore
	signer      downloadSigner
	exporter    *export.Renderer
	cache       cacheInvalidator
	notifier    notifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         FYPConfig
	now         func() time.Time
}

// NewFYPService constructs an FYPService.
func NewFYPService(params FYPServiceParams) *FYPService {
	cfg := params.Config
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/files/download"
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	exporter := params.Exporter
	if exporter == nil {
		exporter = export.NewRenderer()
	}
	return &FYPService{
		projects:    params.Projects,
		submissions: params.Submissions,
		profiles:    params.Profiles,
		store:       params.Store,
		signer:      params.Signer,
		exporter:    exporter,
		cache:       params.Cache,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SubmitProposal creates the caller's project, storing the optional document
// as proposal version 1 in the same transaction.
func (s *FYPService) SubmitProposal(ctx context.Context, actorID string, req ProposalRequest) (*models.FinalYearProject, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(subject, policy.ActionFYPAccess); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title must be at least 10 characters and description at least 50")
	}
	if req.Document != nil {
		if err := s.cfg.Upload.Validate(req.Document); err != nil {
			return nil, err
		}
	}

	fyp := &models.FinalYearProject{
		ID:          uuid.NewString(),
		StudentID:   subject.ID,
		Title:       req.Title,
		Description: req.Description,
	}

	var document *models.Submission
	if req.Document != nil {
		document, err = s.storeDocument(ctx, subject.ID, fyp.ID, models.SubmissionProposal, req.Document)
		if err != nil {
			return nil, err
		}
		document.Title = req.Title
	}

	if err := s.projects.CreateProposal(ctx, fyp, document); err != nil {
		s.discard(ctx, document)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a final year project")
		}
		return nil, appErrors.Internal(err, "failed to create proposal")
	}

	s.invalidate(ctx)
	s.notify(ctx, EventProposalSubmitted, fyp.ID, map[string]interface{}{"student_id": fyp.StudentID, "title": fyp.Title})
	return s.reload(ctx, fyp.ID, fyp)
}

// Mine returns the caller's own project.
func (s *FYPService) Mine(ctx context.Context, actorID string) (*models.FinalYearProject, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(subject, policy.ActionFYPAccess); err != nil {
		return nil, err
	}
	fyp, err := s.projects.FindByStudent(ctx, subject.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no final year project submitted yet")
		}
		return nil, appErrors.Internal(err, "failed to load final year project")
	}
	return fyp, nil
}

// Get returns a project visible to the caller.
func (s *FYPService) Get(ctx context.Context, actorID, id string) (*models.FinalYearProject, error) {
	subject, fyp, err := s.loadForActor(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanViewFYP(subject, fyp) {
		return nil, denyFYP(subject)
	}
	return fyp, nil
}

// List returns a page of projects for staff and admins.
func (s *FYPService) List(ctx context.Context, actorID string, filter models.FYPFilter) ([]models.FinalYearProject, *models.Pagination, error) {
	if err := s.authorize(ctx, actorID, policy.ActionFYPList); err != nil {
		return nil, nil, err
	}
	items, total, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list final year projects")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// UpdateProgress sets progress and the repository link.
func (s *FYPService) UpdateProgress(ctx context.Context, actorID, id string, req ProgressRequest) (*models.FinalYearProject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "progress must be 0-100 and the repository link a valid URL")
	}
	subject, fyp, err := s.loadForActor(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanUpdateProgress(subject, fyp) {
		return nil, denyFYP(subject)
	}
	if err := s.projects.UpdateProgress(ctx, id, *req.ProgressPercentage, req.GithubRepoURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "final year project not found")
		}
		return nil, appErrors.Internal(err, "failed to update progress")
	}
	s.invalidate(ctx)
	return s.reload(ctx, id, fyp)
}

// SetStatus advances the project along its lifecycle.
func (s *FYPService) SetStatus(ctx context.Context, actorID, id, status string) (*models.FinalYearProject, error) {
	subject, fyp, err := s.loadForActor(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanSetFYPStatus(subject, fyp) {
		return nil, denyFYP(subject)
	}
	target := models.FYPStatus(status)
	if err := workflow.FYPLifecycle.Transition(fyp.Status, target); err != nil {
		return nil, err
	}
	if err := s.projects.UpdateStatus(ctx, id, fyp.Status, target); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "project status changed concurrently, reload and retry")
		}
		return nil, appErrors.Internal(err, "failed to update project status")
	}
	s.invalidate(ctx)
	return s.reload(ctx, id, fyp)
}

// AssignSupervisor sets the project's supervisor to an active staff or admin profile.
func (s *FYPService) AssignSupervisor(ctx context.Context, actorID, id, supervisorID string) (*models.FinalYearProject, error) {
	if strings.TrimSpace(supervisorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "supervisor_id is required")
	}
	if err := s.authorize(ctx, actorID, policy.ActionFYPAssignSupervisor); err != nil {
		return nil, err
	}
	fyp, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	supervisor, err := s.profiles.FindByID(ctx, supervisorID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load supervisor")
	}
	if !policy.CanSupervise(supervisor) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "supervisor must be an active staff or admin profile")
	}

	audit := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionSupervisor,
		Resource:   "final_year_project",
		ResourceID: &fyp.ID,
		OldValues:  mustJSON(map[string]interface{}{"supervisor_id": fyp.SupervisorID}),
		NewValues:  mustJSON(map[string]interface{}{"supervisor_id": supervisorID}),
		IPAddress:  "system",
		UserAgent:  "fyp-service",
	}
	if err := s.projects.AssignSupervisor(ctx, id, supervisorID, audit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "final year project not found")
		}
		return nil, appErrors.Internal(err, "failed to assign supervisor")
	}
	s.invalidate(ctx)
	return s.reload(ctx, id, fyp)
}

// Export renders the project roster.
func (s *FYPService) Export(ctx context.Context, actorID string, filter models.FYPFilter, rawFormat string) (*ExportFile, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := s.authorize(ctx, actorID, policy.ActionFYPExport); err != nil {
		return nil, err
	}
	items, err := s.projects.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load final year projects")
	}

	dataset := export.Dataset{
		Title: "Final Year Projects",
		Columns: []export.Column{
			{Key: "student", Label: "Student"},
			{Key: "title", Label: "Title"},
			{Key: "status", Label: "Status"},
			{Key: "supervisor", Label: "Supervisor"},
			{Key: "progress", Label: "Progress %"},
			{Key: "updated", Label: "Last Updated"},
		},
	}
	for _, fyp := range items {
		supervisor := "Unassigned"
		if fyp.SupervisorName != nil {
			supervisor = *fyp.SupervisorName
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"student":    fyp.StudentName,
			"title":      fyp.Title,
			"status":     string(fyp.Status),
			"supervisor": supervisor,
			"progress":   strconv.Itoa(fyp.ProgressPercentage),
			"updated":    fyp.UpdatedAt.Format("2006-01-02"),
		})
	}
	data, err := s.exporter.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	return &ExportFile{
		FileName:    fmt.Sprintf("fyp-roster-%s.%s", s.now().UTC().Format("20060102"), format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func (s *FYPService) authorize(ctx context.Context, actorID string, action policy.Action) error {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return err
	}
	return policy.Authorize(subject, action)
}

func (s *FYPService) loadForActor(ctx context.Context, actorID, id string) (policy.Subject, *models.FinalYearProject, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return policy.Subject{}, nil, err
	}
	// Ineligible students are turned away before learning whether the project exists.
	if !policy.Can(subject, policy.ActionFYPAccess) && !subject.Is(models.RoleStaff, models.RoleAdmin) {
		return subject, nil, appErrors.ErrFYPRestricted
	}
	fyp, err := s.find(ctx, id)
	if err != nil {
		return subject, nil, err
	}
	return subject, fyp, nil
}

func (s *FYPService) find(ctx context.Context, id string) (*models.FinalYearProject, error) {
	fyp, err := s.projects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "final year project not found")
		}
		return nil, appErrors.Internal(err, "failed to load final year project")
	}
	return fyp, nil
}

// reload re-reads a project after a write, falling back to the in-memory copy.
func (s *FYPService) reload(ctx context.Context, id string, fallback *models.FinalYearProject) (*models.FinalYearProject, error) {
	fyp, err := s.projects.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("reload final year project", zap.String("fyp_id", id), zap.Error(err))
		return fallback, nil
	}
	return fyp, nil
}

func (s *FYPService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.DashboardPattern); err != nil {
		s.logger.Warn("dashboard invalidation failed", zap.Error(err))
	}
}

func (s *FYPService) notify(ctx context.Context, eventType, key string, data map[string]interface{}) {
	s.notifyWith(ctx, Notification{Event: messaging.Event{Type: eventType, Key: key, Data: data}})
}

func (s *FYPService) notifyWith(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, n)
}

// denyFYP picks the error for a caller refused access to a project.
func denyFYP(subject policy.Subject) error {
	if !policy.Can(subject, policy.ActionFYPAccess) && !subject.Is(models.RoleStaff, models.RoleAdmin) {
		return appErrors.ErrFYPRestricted
	}
	return appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this final year project")
}
