package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	"github.com/swebuk/portal-api/internal/repository"
	"github.com/swebuk/portal-api/internal/workflow"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/messaging"
)

type clusterRepository interface {
	CreateCluster(ctx context.Context, cluster *models.Cluster) error
	FindCluster(ctx context.Context, id string) (*models.Cluster, error)
	ListClusters(ctx context.Context) ([]models.Cluster, error)
	UpdateLeadership(ctx context.Context, cluster *models.Cluster) error
	CreateProject(ctx context.Context, project *models.Project) error
	FindProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, clusterID string) ([]models.Project, error)
}

type membershipRepository interface {
	Request(ctx context.Context, kind models.GroupKind, m *models.Membership) error
	Find(ctx context.Context, kind models.GroupKind, id string) (*models.Membership, error)
	List(ctx context.Context, kind models.GroupKind, groupID string, status *models.MembershipStatus) ([]models.Membership, error)
	Review(ctx context.Context, kind models.GroupKind, id string, status models.MembershipStatus, note *string, reviewerID string) (*models.Membership, error)
	ListForUser(ctx context.Context, kind models.GroupKind, userID string) ([]models.Membership, error)
}

// ClusterRequest creates a cluster.
type ClusterRequest struct {
	Name           string  `json:"name" validate:"required,max=120"`
	Description    string  `json:"description" validate:"max=2000"`
	LeadID         *string `json:"lead_id"`
	DeputyID       *string `json:"deputy_id"`
	StaffManagerID *string `json:"staff_manager_id"`
}

// LeadershipRequest replaces a cluster's leadership.
type LeadershipRequest struct {
	LeadID         *string `json:"lead_id"`
	DeputyID       *string `json:"deputy_id"`
	StaffManagerID *string `json:"staff_manager_id"`
}

// ProjectRequest creates a project.
type ProjectRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description string  `json:"description" validate:"max=2000"`
	ClusterID   *string `json:"cluster_id"`
}

// MembershipReviewRequest decides a pending join request.
type MembershipReviewRequest struct {
	Status string  `json:"status" validate:"required,oneof=approved rejected"`
	Note   *string `json:"note" validate:"omitempty,max=1000"`
}

// ClusterService manages clusters, projects and their join requests.
type ClusterService struct {
	groups      clusterRepository
	memberships membershipRepository
	profiles    profileFinder
	cache       cacheInvalidator
	notifier    notifier
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClusterService constructs a ClusterService.
func NewClusterService(groups clusterRepository, memberships membershipRepository, profiles profileFinder, cache cacheInvalidator, notifier notifier, validate *validator.Validate, logger *zap.Logger) *ClusterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClusterService{
		groups:      groups,
		memberships: memberships,
		profiles:    profiles,
		cache:       cache,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
	}
}

// CreateCluster adds a cluster with optional leadership.
func (s *ClusterService) CreateCluster(ctx context.Context, actorID string, req ClusterRequest) (*models.Cluster, error) {
	if err := s.authorize(ctx, actorID, policy.ActionClusterCreate); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cluster name is required")
	}
	cluster := &models.Cluster{
		Name:           req.Name,
		Description:    strings.TrimSpace(req.Description),
		LeadID:         blankToNil(req.LeadID),
		DeputyID:       blankToNil(req.DeputyID),
		StaffManagerID: blankToNil(req.StaffManagerID),
	}
	if err := s.checkLeadership(ctx, cluster); err != nil {
		return nil, err
	}
	if err := s.groups.CreateCluster(ctx, cluster); err != nil {
		return nil, appErrors.Internal(err, "failed to create cluster")
	}
	return cluster, nil
}

// ListClusters returns every cluster.
func (s *ClusterService) ListClusters(ctx context.Context) ([]models.Cluster, error) {
	clusters, err := s.groups.ListClusters(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list clusters")
	}
	return clusters, nil
}

// GetCluster returns one cluster.
func (s *ClusterService) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	return s.findCluster(ctx, id)
}

// UpdateLeadership replaces the lead, deputy and staff manager of a cluster.
func (s *ClusterService) UpdateLeadership(ctx context.Context, actorID, id string, req LeadershipRequest) (*models.Cluster, error) {
	if err := s.authorize(ctx, actorID, policy.ActionClusterLeadership); err != nil {
		return nil, err
	}
	cluster, err := s.findCluster(ctx, id)
	if err != nil {
		return nil, err
	}
	cluster.LeadID = blankToNil(req.LeadID)
	cluster.DeputyID = blankToNil(req.DeputyID)
	cluster.StaffManagerID = blankToNil(req.StaffManagerID)
	if err := s.checkLeadership(ctx, cluster); err != nil {
		return nil, err
	}
	if err := s.groups.UpdateLeadership(ctx, cluster); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cluster not found")
		}
		return nil, appErrors.Internal(err, "failed to update cluster leadership")
	}
	s.invalidate(ctx)
	return cluster, nil
}

// CreateProject adds a project owned by the caller.
func (s *ClusterService) CreateProject(ctx context.Context, actorID string, req ProjectRequest) (*models.Project, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(subject, policy.ActionProjectCreate); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "project name is required")
	}
	project := &models.Project{
		ClusterID:   blankToNil(req.ClusterID),
		OwnerID:     subject.ID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	}
	if project.ClusterID != nil {
		if _, err := s.findCluster(ctx, *project.ClusterID); err != nil {
			return nil, err
		}
	}
	if err := s.groups.CreateProject(ctx, project); err != nil {
		return nil, appErrors.Internal(err, "failed to create project")
	}
	return project, nil
}

// ListProjects returns projects, optionally within one cluster.
func (s *ClusterService) ListProjects(ctx context.Context, clusterID string) ([]models.Project, error) {
	projects, err := s.groups.ListProjects(ctx, clusterID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list projects")
	}
	return projects, nil
}

// GetProject returns one project.
func (s *ClusterService) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.findProject(ctx, id)
}

// Join files a pending join request for the caller.
func (s *ClusterService) Join(ctx context.Context, actorID string, kind models.GroupKind, groupID string, note *string) (*models.Membership, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if !subject.Active || subject.ID == "" {
		return nil, appErrors.ErrForbidden
	}
	if _, _, err := s.loadGroup(ctx, kind, groupID); err != nil {
		return nil, err
	}
	m := &models.Membership{GroupID: groupID, UserID: subject.ID, Note: blankToNil(note)}
	if err := s.memberships.Request(ctx, kind, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("you have already requested to join this %s", kind))
		}
		return nil, appErrors.Internal(err, "failed to save join request")
	}
	s.invalidate(ctx)
	return m, nil
}

// Members lists a group's memberships. Managers may filter by any status;
// everyone else sees approved members only.
func (s *ClusterService) Members(ctx context.Context, actorID string, kind models.GroupKind, groupID string, rawStatus string) ([]models.Membership, error) {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	cluster, project, err := s.loadGroup(ctx, kind, groupID)
	if err != nil {
		return nil, err
	}

	var status *models.MembershipStatus
	if rawStatus != "" {
		st := models.MembershipStatus(rawStatus)
		switch st {
		case models.MembershipPending, models.MembershipApproved, models.MembershipRejected:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown membership status %q", rawStatus))
		}
		status = &st
	}
	if !s.canManage(ctx, subject, cluster, project) {
		approved := models.MembershipApproved
		if status != nil && *status != approved {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only group managers can see pending or rejected requests")
		}
		status = &approved
	}

	members, err := s.memberships.List(ctx, kind, groupID, status)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list members")
	}
	return members, nil
}

// ReviewMember approves or rejects a pending join request.
func (s *ClusterService) ReviewMember(ctx context.Context, actorID string, kind models.GroupKind, groupID, membershipID string, req MembershipReviewRequest) (*models.Membership, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be approved or rejected")
	}
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	cluster, project, err := s.loadGroup(ctx, kind, groupID)
	if err != nil {
		return nil, err
	}
	if !s.canManage(ctx, subject, cluster, project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("only this %s's managers can review join requests", kind))
	}

	current, err := s.memberships.Find(ctx, kind, membershipID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "join request not found")
		}
		return nil, appErrors.Internal(err, "failed to load join request")
	}
	if current.GroupID != groupID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "join request not found")
	}
	target := models.MembershipStatus(req.Status)
	if err := workflow.MembershipReview.Transition(current.Status, target); err != nil {
		return nil, err
	}

	reviewed, err := s.memberships.Review(ctx, kind, membershipID, target, blankToNil(req.Note), subject.ID)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "join request has already been reviewed")
		}
		return nil, appErrors.Internal(err, "failed to review join request")
	}

	s.invalidate(ctx)
	if s.notifier != nil {
		s.notifier.Notify(ctx, Notification{Event: messaging.Event{
			Type: EventMembershipReviewed,
			Key:  reviewed.ID,
			Data: map[string]interface{}{"kind": kind, "group_id": groupID, "user_id": reviewed.UserID, "status": reviewed.Status},
		}})
	}
	return reviewed, nil
}

// MyMemberships lists the caller's requests of one kind.
func (s *ClusterService) MyMemberships(ctx context.Context, actorID string, kind models.GroupKind) ([]models.Membership, error) {
	items, err := s.memberships.ListForUser(ctx, kind, actorID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list memberships")
	}
	return items, nil
}

func (s *ClusterService) loadGroup(ctx context.Context, kind models.GroupKind, id string) (*models.Cluster, *models.Project, error) {
	switch kind {
	case models.GroupCluster:
		cluster, err := s.findCluster(ctx, id)
		return cluster, nil, err
	case models.GroupProject:
		project, err := s.findProject(ctx, id)
		return nil, project, err
	}
	return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown group kind %q", kind))
}

func (s *ClusterService) canManage(ctx context.Context, subject policy.Subject, cluster *models.Cluster, project *models.Project) bool {
	if cluster != nil {
		return policy.CanManageCluster(subject, cluster)
	}
	var parent *models.Cluster
	if project.ClusterID != nil {
		var err error
		if parent, err = s.groups.FindCluster(ctx, *project.ClusterID); err != nil {
			s.logger.Warn("parent cluster lookup failed", zap.String("project_id", project.ID), zap.Error(err))
			parent = nil
		}
	}
	return policy.CanManageProject(subject, project, parent)
}

// checkLeadership requires referenced profiles to exist; the staff manager
// must be active staff or admin.
func (s *ClusterService) checkLeadership(ctx context.Context, cluster *models.Cluster) error {
	for field, id := range map[string]*string{"lead_id": cluster.LeadID, "deputy_id": cluster.DeputyID} {
		if id == nil {
			continue
		}
		if _, err := s.profiles.FindByID(ctx, *id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, field+" does not reference a profile")
			}
			return appErrors.Internal(err, "failed to load profile")
		}
	}
	if cluster.StaffManagerID != nil {
		manager, err := s.profiles.FindByID(ctx, *cluster.StaffManagerID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to load profile")
		}
		if !policy.CanSupervise(manager) {
			return appErrors.Clone(appErrors.ErrValidation, "staff_manager_id must reference an active staff or admin profile")
		}
	}
	return nil
}

func (s *ClusterService) findCluster(ctx context.Context, id string) (*models.Cluster, error) {
	cluster, err := s.groups.FindCluster(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cluster not found")
		}
		return nil, appErrors.Internal(err, "failed to load cluster")
	}
	return cluster, nil
}

func (s *ClusterService) findProject(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.groups.FindProject(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Internal(err, "failed to load project")
	}
	return project, nil
}

func (s *ClusterService) authorize(ctx context.Context, actorID string, action policy.Action) error {
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return err
	}
	return policy.Authorize(subject, action)
}

func (s *ClusterService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.DashboardPattern); err != nil {
		s.logger.Warn("dashboard invalidation failed", zap.Error(err))
	}
}

func blankToNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
