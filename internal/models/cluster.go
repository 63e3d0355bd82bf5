package models

import "time"

// Cluster is a student club division with its own leadership.
type Cluster struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	LeadID         *string   `db:"lead_id" json:"lead_id,omitempty"`
	DeputyID       *string   `db:"deputy_id" json:"deputy_id,omitempty"`
	StaffManagerID *string   `db:"staff_manager_id" json:"staff_manager_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ManagerIDs lists the profiles allowed to review this cluster's join requests.
func (c *Cluster) ManagerIDs() []string {
	ids := make([]string, 0, 3)
	for _, id := range []*string{c.LeadID, c.DeputyID, c.StaffManagerID} {
		if id != nil && *id != "" {
			ids = append(ids, *id)
		}
	}
	return ids
}

// Project is a team effort, optionally owned by a cluster.
type Project struct {
	ID          string    `db:"id" json:"id"`
	ClusterID   *string   `db:"cluster_id" json:"cluster_id,omitempty"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GroupKind distinguishes cluster and project memberships.
type GroupKind string

const (
	GroupCluster GroupKind = "cluster"
	GroupProject GroupKind = "project"
)

// MembershipStatus is the state of a join request.
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
	MembershipRejected MembershipStatus = "rejected"
)

// Membership is a join request for a cluster or project.
type Membership struct {
	ID          string           `db:"id" json:"id"`
	GroupID     string           `db:"group_id" json:"group_id"`
	UserID      string           `db:"user_id" json:"user_id"`
	FullName    string           `db:"full_name" json:"full_name,omitempty"`
	Status      MembershipStatus `db:"status" json:"status"`
	Note        *string          `db:"note" json:"note,omitempty"`
	RequestedAt time.Time        `db:"requested_at" json:"requested_at"`
	ReviewedAt  *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy  *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
}
