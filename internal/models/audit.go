package models

import "time"

const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionSignup         = "SIGNUP"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionRoleChange     = "ROLE_CHANGE"
	AuditActionLevelChange    = "LEVEL_CHANGE"
	AuditActionRollForward    = "SESSION_ROLL_FORWARD"
	AuditActionReview         = "SUBMISSION_REVIEW"
	AuditActionSupervisor     = "SUPERVISOR_ASSIGN"
	AuditActionSessionCreate  = "SESSION_CREATE"
	AuditActionSessionSwitch  = "SESSION_ACTIVATE"
	AuditActionClusterCreate  = "CLUSTER_CREATE"
	AuditActionLeadership     = "CLUSTER_LEADERSHIP"
	AuditActionEventStatus    = "EVENT_STATUS"
	AuditActionPostModerate   = "POST_MODERATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
