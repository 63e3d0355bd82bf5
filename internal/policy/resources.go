package policy

import "github.com/swebuk/portal-api/internal/models"

// CanViewFYP allows the owning student, the assigned supervisor and staff/admin.
func CanViewFYP(s Subject, fyp *models.FinalYearProject) bool {
	if fyp == nil {
		return false
	}
	if isSupervisor(s, fyp) || Can(s, ActionFYPList) {
		return true
	}
	return fyp.StudentID == s.ID && Can(s, ActionFYPAccess)
}

// CanSubmitToFYP allows only the eligible owner.
func CanSubmitToFYP(s Subject, fyp *models.FinalYearProject) bool {
	return fyp != nil && fyp.StudentID == s.ID && Can(s, ActionFYPAccess)
}

// CanUpdateProgress allows the eligible owner and the assigned supervisor.
func CanUpdateProgress(s Subject, fyp *models.FinalYearProject) bool {
	return CanSubmitToFYP(s, fyp) || isSupervisor(s, fyp)
}

// CanSetFYPStatus allows the assigned supervisor and staff/admin.
func CanSetFYPStatus(s Subject, fyp *models.FinalYearProject) bool {
	return isSupervisor(s, fyp) || Can(s, ActionFYPSetStatus)
}

func isSupervisor(s Subject, fyp *models.FinalYearProject) bool {
	return fyp != nil && fyp.SupervisorID != nil && *fyp.SupervisorID == s.ID && s.Is(models.RoleStaff, models.RoleAdmin)
}

// CanManageCluster allows the cluster's lead, deputy, staff manager and admins.
func CanManageCluster(s Subject, cluster *models.Cluster) bool {
	if cluster == nil || !s.Active {
		return false
	}
	if Can(s, ActionMembershipManageAny) {
		return true
	}
	for _, id := range cluster.ManagerIDs() {
		if id == s.ID {
			return true
		}
	}
	return false
}

// CanManageProject allows the owner, the parent cluster's managers, staff and admins.
func CanManageProject(s Subject, project *models.Project, parent *models.Cluster) bool {
	if project == nil || !s.Active {
		return false
	}
	if project.OwnerID == s.ID || s.Is(models.RoleStaff, models.RoleAdmin) {
		return true
	}
	return parent != nil && CanManageCluster(s, parent)
}

// CanManageEvent allows the organizer and staff/admin.
func CanManageEvent(s Subject, event *models.Event) bool {
	if event == nil {
		return false
	}
	return (event.OrganizerID == s.ID && s.Active) || Can(s, ActionEventManageAny)
}

// CanEditPost allows the author while the post is not published.
func CanEditPost(s Subject, post *models.BlogPost) bool {
	return post != nil && s.Active && post.AuthorID == s.ID && post.Status != models.PostPublished
}
