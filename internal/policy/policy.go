// Package policy is the single place authorization decisions are made.
// Decisions are taken against the stored profile, never token claims, and
// anything not explicitly granted is denied.
package policy

import (
	"github.com/swebuk/portal-api/internal/models"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

// Action names a guarded operation.
type Action string

const (
	ActionFYPAccess           Action = "fyp.access"
	ActionFYPList             Action = "fyp.list"
	ActionFYPReview           Action = "fyp.review"
	ActionFYPAssignSupervisor Action = "fyp.assign_supervisor"
	ActionFYPSetStatus        Action = "fyp.set_status"
	ActionFYPExport           Action = "fyp.export"
	ActionSessionManage       Action = "session.manage"
	ActionSessionRollForward  Action = "session.roll_forward"
	ActionUserList            Action = "user.list"
	ActionUserSetRole         Action = "user.set_role"
	ActionUserSetLevel        Action = "user.set_level"
	ActionClusterCreate       Action = "cluster.create"
	ActionClusterLeadership   Action = "cluster.leadership"
	ActionProjectCreate       Action = "project.create"
	ActionEventCreate         Action = "event.create"
	ActionEventManageAny      Action = "event.manage_any"
	ActionPostModerate        Action = "post.moderate"
	ActionMembershipManageAny Action = "membership.manage_any"
)

var (
	staffOrAdmin = []models.Role{models.RoleStaff, models.RoleAdmin}
	leadership   = []models.Role{models.RoleStaff, models.RoleAdmin, models.RoleLead, models.RoleDeputy}
)

var grants = map[Action][]models.Role{
	ActionFYPList:             staffOrAdmin,
	ActionFYPReview:           staffOrAdmin,
	ActionFYPAssignSupervisor: staffOrAdmin,
	ActionFYPSetStatus:        staffOrAdmin,
	ActionFYPExport:           staffOrAdmin,
	ActionSessionManage:       {models.RoleAdmin},
	ActionSessionRollForward:  staffOrAdmin,
	ActionUserList:            staffOrAdmin,
	ActionUserSetRole:         {models.RoleAdmin},
	ActionUserSetLevel:        staffOrAdmin,
	ActionClusterCreate:       staffOrAdmin,
	ActionClusterLeadership:   staffOrAdmin,
	ActionProjectCreate:       {models.RoleStudent, models.RoleStaff, models.RoleAdmin, models.RoleLead, models.RoleDeputy},
	ActionEventCreate:         leadership,
	ActionEventManageAny:      staffOrAdmin,
	ActionPostModerate:        {models.RoleStaff, models.RoleAdmin, models.RoleLead},
	ActionMembershipManageAny: {models.RoleAdmin},
}

// Subject is the caller as recorded in the profile store.
type Subject struct {
	ID     string
	Role   models.Role
	Level  models.AcademicLevel
	Active bool
}

// SubjectFromProfile builds a subject. A nil profile yields a subject that is denied everything.
func SubjectFromProfile(p *models.Profile) Subject {
	if p == nil {
		return Subject{}
	}
	level := p.Level()
	if parsed, ok := models.ParseAcademicLevel(string(level)); ok {
		level = parsed
	}
	return Subject{ID: p.ID, Role: p.Role, Level: level, Active: p.Active}
}

// Is reports whether the subject holds any of the roles.
func (s Subject) Is(roles ...models.Role) bool {
	if !s.Active || s.ID == "" {
		return false
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

// Can reports whether the subject may perform the action.
func Can(s Subject, action Action) bool {
	if action == ActionFYPAccess {
		return s.Active && s.ID != "" && IsFYPEligible(s.Level)
	}
	return s.Is(grants[action]...)
}

// Authorize returns nil when allowed, FYP_ACCESS_RESTRICTED for the FYP
// eligibility gate, FORBIDDEN otherwise.
func Authorize(s Subject, action Action) error {
	if Can(s, action) {
		return nil
	}
	if action == ActionFYPAccess {
		return appErrors.ErrFYPRestricted
	}
	return appErrors.ErrForbidden
}

// IsFYPEligible is true only for level 400, including the legacy "400" literal.
func IsFYPEligible(level models.AcademicLevel) bool {
	parsed, ok := models.ParseAcademicLevel(string(level))
	return ok && parsed == models.Level400
}

// CanSupervise reports whether a profile may be assigned as an FYP supervisor.
func CanSupervise(p *models.Profile) bool {
	return SubjectFromProfile(p).Is(models.RoleStaff, models.RoleAdmin)
}
