package model

import "strings"

// Role identifies a user's privilege tier. The hierarchy is strict:
// ADMIN > TEACHER > STUDENT. All permission decisions in the service
// derive from this single ordering instead of ad hoc string checks.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// ParseRole normalizes a raw role string (e.g. from a JWT claim) into a
// Role. The second return value reports whether the input named a known
// tier.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleTeacher:
		return RoleTeacher, true
	case RoleStudent:
		return RoleStudent, true
	}
	return "", false
}

// Level maps the role onto the canonical privilege ordering.  Higher is
// more privileged.  Unknown roles rank below every known tier.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleTeacher:
		return 2
	case RoleStudent:
		return 1
	}
	return 0
}

// Privileged reports whether the role may self-approve reservations and
// declare maintenance windows. Students are the only non-privileged tier.
func (r Role) Privileged() bool { return r.Level() >= RoleTeacher.Level() }
