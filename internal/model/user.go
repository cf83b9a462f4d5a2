package model

import "time"

// User mirrors the 'users' table. Accounts are provisioned by the
// inventory/administration collaborator; this service only reads them to
// authenticate actors and resolve supervision links.
//
// AdvisorID is set only for students and references the supervising
// teacher. It drives both moderation rights (a teacher may act on their
// own advisees' reservations) and audit visibility grants.
type User struct {
	ID           uint64
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	AdvisorID    *uint64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SupervisedBy reports whether u is a student under the given teacher.
func (u User) SupervisedBy(teacherID uint64) bool {
	return u.Role == RoleStudent && u.AdvisorID != nil && *u.AdvisorID == teacherID
}
