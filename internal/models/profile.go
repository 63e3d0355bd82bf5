package models

import (
	"strings"
	"time"
)

// Role is the functional permission axis of a profile.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleLead    Role = "lead"
	RoleDeputy  Role = "deputy"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleLead, RoleDeputy, RoleAdmin:
		return true
	}
	return false
}

// AcademicLevel is the progression axis of a student profile.
type AcademicLevel string

const (
	Level100    AcademicLevel = "level_100"
	Level200    AcademicLevel = "level_200"
	Level300    AcademicLevel = "level_300"
	Level400    AcademicLevel = "level_400"
	LevelAlumni AcademicLevel = "alumni"
)

var nextLevel = map[AcademicLevel]AcademicLevel{
	Level100: Level200,
	Level200: Level300,
	Level300: Level400,
	Level400: LevelAlumni,
}

// ParseAcademicLevel normalises stored values, accepting the legacy "100".."400" literals.
func ParseAcademicLevel(raw string) (AcademicLevel, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "100", "200", "300", "400":
		value = "level_" + value
	}
	level := AcademicLevel(value)
	if level == LevelAlumni {
		return level, true
	}
	_, ok := nextLevel[level]
	return level, ok
}

// Next returns the level a student moves to at session roll-forward.
func (l AcademicLevel) Next() (AcademicLevel, bool) {
	next, ok := nextLevel[l]
	return next, ok
}

// Profile is a portal account. Role and academic level are independent.
type Profile struct {
	ID            string         `db:"id" json:"id"`
	Email         string         `db:"email" json:"email"`
	PasswordHash  string         `db:"password_hash" json:"-"`
	FullName      string         `db:"full_name" json:"full_name"`
	Role          Role           `db:"role" json:"role"`
	AcademicLevel *AcademicLevel `db:"academic_level" json:"academic_level,omitempty"`
	Active        bool           `db:"active" json:"active"`
	LastLogin     *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Normalize rewrites legacy level literals in place.
func (p *Profile) Normalize() {
	if p == nil || p.AcademicLevel == nil {
		return
	}
	if level, ok := ParseAcademicLevel(string(*p.AcademicLevel)); ok {
		p.AcademicLevel = &level
	}
}

// Level returns the academic level or the empty string.
func (p *Profile) Level() AcademicLevel {
	if p == nil || p.AcademicLevel == nil {
		return ""
	}
	return *p.AcademicLevel
}

// ProfileFilter captures filtering criteria for listing profiles.
type ProfileFilter struct {
	Role     *Role
	Level    *AcademicLevel
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page and size the way repositories apply them.
func NewPagination(page, pageSize, total int) *Pagination {
	page, pageSize = NormalizePage(page, pageSize)
	return &Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

// NormalizePage clamps page to >= 1 and size to 1..100 (default 20).
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
