package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/repository"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

type stubGroups struct {
	clusters map[string]*models.Cluster
	projects map[string]*models.Project
}

func (s *stubGroups) CreateCluster(_ context.Context, c *models.Cluster) error {
	c.ID = "cluster-" + c.Name
	s.clusters[c.ID] = c
	return nil
}

func (s *stubGroups) FindCluster(_ context.Context, id string) (*models.Cluster, error) {
	c, ok := s.clusters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (s *stubGroups) ListClusters(context.Context) ([]models.Cluster, error) {
	var out []models.Cluster
	for _, c := range s.clusters {
		out = append(out, *c)
	}
	return out, nil
}

func (s *stubGroups) UpdateLeadership(_ context.Context, c *models.Cluster) error {
	if _, ok := s.clusters[c.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *c
	s.clusters[c.ID] = &copied
	return nil
}

func (s *stubGroups) CreateProject(_ context.Context, p *models.Project) error {
	p.ID = "project-" + p.Name
	s.projects[p.ID] = p
	return nil
}

func (s *stubGroups) FindProject(_ context.Context, id string) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (s *stubGroups) ListProjects(_ context.Context, clusterID string) ([]models.Project, error) {
	var out []models.Project
	for _, p := range s.projects {
		if clusterID == "" || (p.ClusterID != nil && *p.ClusterID == clusterID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

type stubMemberships struct {
	rows []*models.Membership
}

func (s *stubMemberships) Request(_ context.Context, _ models.GroupKind, m *models.Membership) error {
	for _, row := range s.rows {
		if row.GroupID == m.GroupID && row.UserID == m.UserID {
			return repository.ErrDuplicate
		}
	}
	m.ID = "m-" + m.UserID + "-" + m.GroupID
	m.Status = models.MembershipPending
	m.RequestedAt = time.Now()
	copied := *m
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *stubMemberships) Find(_ context.Context, _ models.GroupKind, id string) (*models.Membership, error) {
	for _, row := range s.rows {
		if row.ID == id {
			copied := *row
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubMemberships) List(_ context.Context, _ models.GroupKind, groupID string, status *models.MembershipStatus) ([]models.Membership, error) {
	var out []models.Membership
	for _, row := range s.rows {
		if row.GroupID == groupID && (status == nil || row.Status == *status) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *stubMemberships) Review(_ context.Context, _ models.GroupKind, id string, status models.MembershipStatus, note *string, reviewerID string) (*models.Membership, error) {
	for _, row := range s.rows {
		if row.ID != id {
			continue
		}
		if row.Status != models.MembershipPending {
			return nil, repository.ErrStaleState
		}
		now := time.Now()
		row.Status, row.ReviewedAt, row.ReviewedBy = status, &now, &reviewerID
		if note != nil {
			row.Note = note
		}
		copied := *row
		return &copied, nil
	}
	return nil, repository.ErrStaleState
}

func (s *stubMemberships) ListForUser(_ context.Context, _ models.GroupKind, userID string) ([]models.Membership, error) {
	var out []models.Membership
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type clusterFixture struct {
	svc     *ClusterService
	groups  *stubGroups
	members *stubMemberships
	notes   *stubNotifier
}

func newClusterFixture() *clusterFixture {
	profiles := newStubProfiles(
		student("s1", models.Level200),
		student("s2", models.Level300),
		member("lead-1", models.RoleLead),
		member("lead-2", models.RoleLead),
		member("staff-1", models.RoleStaff),
		member("admin-1", models.RoleAdmin),
	)
	f := &clusterFixture{
		groups: &stubGroups{
			clusters: map[string]*models.Cluster{"web": {ID: "web", Name: "Web", LeadID: strPtr("lead-1")}},
			projects: map[string]*models.Project{},
		},
		members: &stubMemberships{},
		notes:   &stubNotifier{},
	}
	f.svc = NewClusterService(f.groups, f.members, profiles, &stubInvalidator{}, f.notes, nil, nil)
	return f
}

func TestClusterJoinAndReviewByLead(t *testing.T) {
	f := newClusterFixture()
	ctx := context.Background()

	m, err := f.svc.Join(ctx, "s1", models.GroupCluster, "web", nil)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipPending, m.Status)

	_, err = f.svc.Join(ctx, "s1", models.GroupCluster, "web", nil)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.ReviewMember(ctx, "lead-2", models.GroupCluster, "web", m.ID, MembershipReviewRequest{Status: "approved"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	note := "welcome aboard"
	reviewed, err := f.svc.ReviewMember(ctx, "lead-1", models.GroupCluster, "web", m.ID, MembershipReviewRequest{Status: "approved", Note: &note})
	require.NoError(t, err)
	assert.Equal(t, models.MembershipApproved, reviewed.Status)
	assert.Equal(t, "lead-1", *reviewed.ReviewedBy)
	assert.Equal(t, []string{EventMembershipReviewed}, f.notes.types())

	_, err = f.svc.ReviewMember(ctx, "admin-1", models.GroupCluster, "web", m.ID, MembershipReviewRequest{Status: "rejected"})
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestClusterMembersHidesPendingFromNonManagers(t *testing.T) {
	f := newClusterFixture()
	ctx := context.Background()
	_, err := f.svc.Join(ctx, "s1", models.GroupCluster, "web", nil)
	require.NoError(t, err)

	visible, err := f.svc.Members(ctx, "s2", models.GroupCluster, "web", "")
	require.NoError(t, err)
	assert.Empty(t, visible)

	_, err = f.svc.Members(ctx, "s2", models.GroupCluster, "web", "pending")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	pending, err := f.svc.Members(ctx, "lead-1", models.GroupCluster, "web", "pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.svc.Members(ctx, "lead-1", models.GroupCluster, "web", "archived")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProjectReviewByOwnerAndParentCluster(t *testing.T) {
	f := newClusterFixture()
	ctx := context.Background()

	project, err := f.svc.CreateProject(ctx, "s2", ProjectRequest{Name: "Portal", ClusterID: strPtr("web")})
	require.NoError(t, err)
	assert.Equal(t, "s2", project.OwnerID)

	first, err := f.svc.Join(ctx, "s1", models.GroupProject, project.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.ReviewMember(ctx, "s2", models.GroupProject, project.ID, first.ID, MembershipReviewRequest{Status: "rejected"})
	require.NoError(t, err)

	second, err := f.svc.Join(ctx, "lead-2", models.GroupProject, project.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.ReviewMember(ctx, "lead-1", models.GroupProject, project.ID, second.ID, MembershipReviewRequest{Status: "approved"})
	require.NoError(t, err)

	_, err = f.svc.CreateProject(ctx, "s1", ProjectRequest{Name: "Orphan", ClusterID: strPtr("missing")})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReviewRejectsRequestFromAnotherGroup(t *testing.T) {
	f := newClusterFixture()
	ctx := context.Background()
	f.groups.clusters["mobile"] = &models.Cluster{ID: "mobile", Name: "Mobile", LeadID: strPtr("lead-2")}

	m, err := f.svc.Join(ctx, "s1", models.GroupCluster, "web", nil)
	require.NoError(t, err)
	_, err = f.svc.ReviewMember(ctx, "lead-2", models.GroupCluster, "mobile", m.ID, MembershipReviewRequest{Status: "approved"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClusterLeadershipRules(t *testing.T) {
	f := newClusterFixture()
	ctx := context.Background()

	_, err := f.svc.CreateCluster(ctx, "lead-1", ClusterRequest{Name: "AI"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.CreateCluster(ctx, "staff-1", ClusterRequest{Name: "AI", StaffManagerID: strPtr("s1")})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	cluster, err := f.svc.CreateCluster(ctx, "staff-1", ClusterRequest{Name: "AI", LeadID: strPtr("lead-2"), StaffManagerID: strPtr("staff-1")})
	require.NoError(t, err)

	updated, err := f.svc.UpdateLeadership(ctx, "admin-1", cluster.ID, LeadershipRequest{LeadID: strPtr("lead-1"), DeputyID: strPtr(" ")})
	require.NoError(t, err)
	assert.Equal(t, "lead-1", *updated.LeadID)
	assert.Nil(t, updated.DeputyID)
	assert.Nil(t, updated.StaffManagerID)

	_, err = f.svc.UpdateLeadership(ctx, "admin-1", cluster.ID, LeadershipRequest{LeadID: strPtr("nobody")})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
