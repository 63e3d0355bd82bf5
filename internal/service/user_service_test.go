package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/pkg/cache"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

func TestUserServiceSetRoleRequiresAdmin(t *testing.T) {
	repo := newStubProfiles(member("staff-1", models.RoleStaff), student("s1", models.Level200))
	svc := NewUserService(repo, nil, nil)

	_, err := svc.SetRole(context.Background(), "staff-1", "s1", models.RoleLead)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserServiceSetRoleAudits(t *testing.T) {
	repo := newStubProfiles(member("admin-1", models.RoleAdmin), student("s1", models.Level200))
	inv := &stubInvalidator{}
	svc := NewUserService(repo, inv, nil)

	updated, err := svc.SetRole(context.Background(), "admin-1", "s1", models.RoleLead)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLead, updated.Role)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionRoleChange, repo.auditLogs[0].Action)
	assert.JSONEq(t, `{"role":"student"}`, string(repo.auditLogs[0].OldValues))
	assert.Equal(t, []string{cache.DashboardPattern}, inv.patterns)
}

func TestUserServiceSetLevelAcceptsLegacyLiteral(t *testing.T) {
	repo := newStubProfiles(member("staff-1", models.RoleStaff), student("s1", models.Level300))
	svc := NewUserService(repo, nil, nil)

	raw := "400"
	updated, err := svc.SetLevel(context.Background(), "staff-1", "s1", &raw)
	require.NoError(t, err)
	assert.Equal(t, models.Level400, updated.Level())
}

func TestUserServiceSetLevelRejectsUnknown(t *testing.T) {
	repo := newStubProfiles(member("staff-1", models.RoleStaff), student("s1", models.Level300))
	svc := NewUserService(repo, nil, nil)

	raw := "level_500"
	_, err := svc.SetLevel(context.Background(), "staff-1", "s1", &raw)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceListDeniesStudents(t *testing.T) {
	repo := newStubProfiles(student("s1", models.Level400))
	svc := NewUserService(repo, nil, nil)

	_, _, err := svc.List(context.Background(), "s1", models.ProfileFilter{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
