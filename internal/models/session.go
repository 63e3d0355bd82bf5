package models

import "time"

// AcademicSession is a school year. At most one is active.
type AcademicSession struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LevelSnapshot is one student's level captured before roll-forward.
type LevelSnapshot struct {
	ProfileID     string `db:"id"`
	AcademicLevel string `db:"academic_level"`
}

// RollForwardResult summarises a completed roll-forward.
type RollForwardResult struct {
	DeactivatedSessionID *string               `json:"deactivated_session_id,omitempty"`
	Transitions          map[AcademicLevel]int `json:"transitions"`
	Graduated            int                   `json:"graduated"`
	Total                int                   `json:"total"`
	ExecutedAt           time.Time             `json:"executed_at"`
}
