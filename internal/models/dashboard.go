package models

import "time"

// Dashboard is the role-shaped landing summary. Only the sections that apply
// to the caller are populated.
type Dashboard struct {
	UserID      string            `json:"user_id"`
	Role        Role              `json:"role"`
	GeneratedAt time.Time         `json:"generated_at"`
	Student     *StudentDashboard `json:"student,omitempty"`
	Staff       *StaffDashboard   `json:"staff,omitempty"`
	Leader      *LeaderDashboard  `json:"leader,omitempty"`
}

// StudentDashboard summarises a student's own activity.
type StudentDashboard struct {
	AcademicLevel         AcademicLevel     `json:"academic_level,omitempty"`
	FYPEligible           bool              `json:"fyp_eligible"`
	FYP                   *FinalYearProject `json:"fyp,omitempty"`
	LatestSubmissions     []Submission      `json:"latest_submissions,omitempty"`
	ClusterMemberships    int               `json:"cluster_memberships"`
	ProjectMemberships    int               `json:"project_memberships"`
	PendingRequests       int               `json:"pending_requests"`
	UpcomingRegistrations int               `json:"upcoming_registrations"`
}

// StaffDashboard summarises review and supervision queues.
type StaffDashboard struct {
	PendingReviews   int                   `json:"pending_reviews"`
	MyPendingReviews int                   `json:"my_pending_reviews"`
	UnassignedFYPs   int                   `json:"unassigned_fyps"`
	FYPsByStatus     map[FYPStatus]int     `json:"fyps_by_status"`
	PendingPosts     int                   `json:"pending_posts"`
	UsersPerLevel    map[AcademicLevel]int `json:"users_per_level"`
}

// LeaderDashboard summarises the clusters a lead, deputy or staff manager runs.
type LeaderDashboard struct {
	ManagedClusters     []Cluster `json:"managed_clusters"`
	PendingJoinRequests int       `json:"pending_join_requests"`
	PendingPosts        int       `json:"pending_posts,omitempty"`
}
