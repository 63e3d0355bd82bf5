// Package dto holds HTTP payloads that have no home in the service layer.
package dto

// LogoutRequest revokes a refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RoleRequest changes a profile's role.
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// LevelRequest changes a profile's academic level. A null level clears it.
type LevelRequest struct {
	AcademicLevel *string `json:"academic_level"`
}

// StatusRequest moves a resource through its lifecycle.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SupervisorRequest assigns a supervisor to a final year project.
type SupervisorRequest struct {
	SupervisorID string `json:"supervisor_id" binding:"required"`
}

// JoinRequest asks to join a cluster or project.
type JoinRequest struct {
	Note *string `json:"note"`
}
