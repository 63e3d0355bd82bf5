package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

type dashboardProfiles interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	CountByLevel(ctx context.Context) (map[models.AcademicLevel]int, error)
}

type dashboardFYPs interface {
	FindByStudent(ctx context.Context, studentID string) (*models.FinalYearProject, error)
	CountByStatus(ctx context.Context) (map[models.FYPStatus]int, error)
	CountUnassigned(ctx context.Context) (int, error)
}

type dashboardSubmissions interface {
	ListLatest(ctx context.Context, fypID string) ([]models.Submission, error)
	CountPending(ctx context.Context, supervisorID string) (int, error)
}

type dashboardMemberships interface {
	ListForUser(ctx context.Context, kind models.GroupKind, userID string) ([]models.Membership, error)
	CountPendingForManager(ctx context.Context, profileID string) (int, error)
}

type dashboardClusters interface {
	ClustersManagedBy(ctx context.Context, profileID string) ([]models.Cluster, error)
}

type dashboardEvents interface {
	CountUpcomingForUser(ctx context.Context, userID string) (int, error)
}

type dashboardPosts interface {
	CountPending(ctx context.Context) (int, error)
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Profiles    dashboardProfiles
	FYPs        dashboardFYPs
	Submissions dashboardSubmissions
	Memberships dashboardMemberships
	Clusters    dashboardClusters
	Events      dashboardEvents
	Posts       dashboardPosts
	Cache       *CacheService
	Logger      *zap.Logger
	CacheTTL    time.Duration
}

// DashboardService composes role-shaped summaries from repository counts.
type DashboardService struct {
	profiles    dashboardProfiles
	fyps        dashboardFYPs
	submissions dashboardSubmissions
	memberships dashboardMemberships
	clusters    dashboardClusters
	events      dashboardEvents
	posts       dashboardPosts
	cache       *CacheService
	logger      *zap.Logger
	ttl         time.Duration
	now         func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		profiles:    params.Profiles,
		fyps:        params.FYPs,
		submissions: params.Submissions,
		memberships: params.Memberships,
		clusters:    params.Clusters,
		events:      params.Events,
		posts:       params.Posts,
		cache:       params.Cache,
		logger:      logger,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Summary returns the caller's dashboard and whether it came from cache.
func (s *DashboardService) Summary(ctx context.Context, actorID string) (*models.Dashboard, bool, error) {
	profile, err := s.profiles.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.ErrUnauthorized
		}
		return nil, false, appErrors.Internal(err, "failed to load profile")
	}

	key := cache.DashboardKey(profile.ID)
	if cached, hit := s.tryCache(ctx, key); hit {
		return cached, true, nil
	}

	summary, err := s.compose(ctx, profile)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, key, summary)
	return summary, false, nil
}

func (s *DashboardService) compose(ctx context.Context, profile *models.Profile) (*models.Dashboard, error) {
	subject := policy.SubjectFromProfile(profile)
	summary := &models.Dashboard{UserID: profile.ID, Role: profile.Role, GeneratedAt: s.now().UTC()}

	var err error
	switch profile.Role {
	case models.RoleStudent:
		summary.Student, err = s.studentSection(ctx, subject)
	case models.RoleStaff, models.RoleAdmin:
		summary.Staff, err = s.staffSection(ctx, subject)
	}
	if err != nil {
		return nil, err
	}

	if subject.Is(models.RoleLead, models.RoleDeputy, models.RoleStaff) {
		leader, err := s.leaderSection(ctx, subject)
		if err != nil {
			return nil, err
		}
		summary.Leader = leader
	}
	return summary, nil
}

func (s *DashboardService) studentSection(ctx context.Context, subject policy.Subject) (*models.StudentDashboard, error) {
	section := &models.StudentDashboard{
		AcademicLevel: subject.Level,
		FYPEligible:   policy.Can(subject, policy.ActionFYPAccess),
	}
	if section.FYPEligible {
		fyp, err := s.fyps.FindByStudent(ctx, subject.ID)
		switch {
		case err == nil:
			section.FYP = fyp
			if section.LatestSubmissions, err = s.submissions.ListLatest(ctx, fyp.ID); err != nil {
				return nil, appErrors.Internal(err, "failed to load latest submissions")
			}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Internal(err, "failed to load final year project")
		}
	}

	for _, kind := range []models.GroupKind{models.GroupCluster, models.GroupProject} {
		items, err := s.memberships.ListForUser(ctx, kind, subject.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load memberships")
		}
		for _, m := range items {
			switch m.Status {
			case models.MembershipApproved:
				if kind == models.GroupCluster {
					section.ClusterMemberships++
				} else {
					section.ProjectMemberships++
				}
			case models.MembershipPending:
				section.PendingRequests++
			}
		}
	}

	upcoming, err := s.events.CountUpcomingForUser(ctx, subject.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count registrations")
	}
	section.UpcomingRegistrations = upcoming
	return section, nil
}

func (s *DashboardService) staffSection(ctx context.Context, subject policy.Subject) (*models.StaffDashboard, error) {
	section := &models.StaffDashboard{}
	var err error
	if section.PendingReviews, err = s.submissions.CountPending(ctx, ""); err != nil {
		return nil, appErrors.Internal(err, "failed to count pending reviews")
	}
	if section.MyPendingReviews, err = s.submissions.CountPending(ctx, subject.ID); err != nil {
		return nil, appErrors.Internal(err, "failed to count pending reviews")
	}
	if section.UnassignedFYPs, err = s.fyps.CountUnassigned(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to count unassigned projects")
	}
	if section.FYPsByStatus, err = s.fyps.CountByStatus(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to count projects")
	}
	if section.PendingPosts, err = s.posts.CountPending(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to count pending posts")
	}
	if section.UsersPerLevel, err = s.profiles.CountByLevel(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to count users")
	}
	return section, nil
}

// leaderSection is returned for leads and deputies, and for staff who manage
// at least one cluster.
func (s *DashboardService) leaderSection(ctx context.Context, subject policy.Subject) (*models.LeaderDashboard, error) {
	clusters, err := s.clusters.ClustersManagedBy(ctx, subject.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load managed clusters")
	}
	if len(clusters) == 0 && subject.Is(models.RoleStaff) {
		return nil, nil
	}
	section := &models.LeaderDashboard{ManagedClusters: clusters}
	if len(clusters) > 0 {
		if section.PendingJoinRequests, err = s.memberships.CountPendingForManager(ctx, subject.ID); err != nil {
			return nil, appErrors.Internal(err, "failed to count join requests")
		}
	}
	if subject.Is(models.RoleLead) && policy.Can(subject, policy.ActionPostModerate) {
		if section.PendingPosts, err = s.posts.CountPending(ctx); err != nil {
			return nil, appErrors.Internal(err, "failed to count pending posts")
		}
	}
	return section, nil
}

func (s *DashboardService) tryCache(ctx context.Context, key string) (*models.Dashboard, bool) {
	if s.cache == nil {
		return nil, false
	}
	var cached models.Dashboard
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil || !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
