package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(h int) time.Time {
	return time.Date(2026, 3, 10, h, 0, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{"identical windows", ts(9), ts(11), ts(9), ts(11), true},
		{"partial overlap", ts(9), ts(11), ts(10), ts(12), true},
		{"contained window", ts(9), ts(12), ts(10), ts(11), true},
		{"touching end to start", ts(9), ts(10), ts(10), ts(11), false},
		{"touching start to end", ts(10), ts(11), ts(9), ts(10), false},
		{"disjoint", ts(9), ts(10), ts(14), ts(15), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
			// overlap is symmetric
			assert.Equal(t, tc.want, Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd))
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	all := []ScheduleStatus{SchedulePending, ScheduleApproved, ScheduleRejected, ScheduleCancelled, ScheduleCompleted}
	allowed := map[ScheduleStatus][]ScheduleStatus{
		SchedulePending:  {ScheduleApproved, ScheduleRejected, ScheduleCancelled},
		ScheduleApproved: {ScheduleCancelled},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, SchedulePending.Terminal())
	assert.False(t, ScheduleApproved.Terminal())
	assert.True(t, ScheduleRejected.Terminal())
	assert.True(t, ScheduleCancelled.Terminal())
	assert.True(t, ScheduleCompleted.Terminal())
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, ScheduleApproved, InitialStatus(RoleAdmin))
	assert.Equal(t, ScheduleApproved, InitialStatus(RoleTeacher))
	assert.Equal(t, SchedulePending, InitialStatus(RoleStudent))
}

func TestParseRepeatKind(t *testing.T) {
	got, ok := ParseRepeatKind("")
	assert.True(t, ok)
	assert.Equal(t, RepeatNone, got)

	got, ok = ParseRepeatKind("WEEKLY")
	assert.True(t, ok)
	assert.Equal(t, RepeatWeekly, got)

	_, ok = ParseRepeatKind("FORTNIGHTLY")
	assert.False(t, ok)
}

func uid(v uint64) *uint64 { return &v }

func TestCanModerate(t *testing.T) {
	admin := User{ID: 1, Role: RoleAdmin}
	teacher := User{ID: 2, Role: RoleTeacher}
	otherTeacher := User{ID: 3, Role: RoleTeacher}
	advisee := User{ID: 4, Role: RoleStudent, AdvisorID: uid(2)}
	stranger := User{ID: 5, Role: RoleStudent, AdvisorID: uid(3)}

	assert.True(t, CanModerate(admin, advisee))
	assert.True(t, CanModerate(admin, otherTeacher))
	assert.True(t, CanModerate(teacher, advisee))
	assert.False(t, CanModerate(teacher, stranger))
	assert.False(t, CanModerate(otherTeacher, advisee))
	assert.False(t, CanModerate(advisee, stranger), "students never moderate")
}

func TestCanCancel(t *testing.T) {
	admin := User{ID: 1, Role: RoleAdmin}
	teacher := User{ID: 2, Role: RoleTeacher}
	advisee := User{ID: 4, Role: RoleStudent, AdvisorID: uid(2)}
	stranger := User{ID: 5, Role: RoleStudent, AdvisorID: uid(9)}

	sched := Schedule{ID: 7, CreatorID: advisee.ID, Status: SchedulePending}

	assert.True(t, CanCancel(advisee, sched, advisee), "creator cancels own")
	assert.True(t, CanCancel(admin, sched, advisee))
	assert.True(t, CanCancel(teacher, sched, advisee), "supervising teacher")
	assert.False(t, CanCancel(stranger, sched, advisee))
	assert.False(t, CanCancel(User{ID: 9, Role: RoleTeacher}, sched, advisee), "non-supervising teacher")
}

func TestCancelVisibility(t *testing.T) {
	teacher := User{ID: 2, Role: RoleTeacher}
	advisee := User{ID: 4, Role: RoleStudent, AdvisorID: uid(2)}
	loner := User{ID: 6, Role: RoleStudent}

	// supervisor cancels: the creator gets visibility
	got := CancelVisibility(teacher, advisee)
	if assert.NotNil(t, got) {
		assert.Equal(t, advisee.ID, *got)
	}
	// self-cancel: the advisor gets visibility
	got = CancelVisibility(advisee, advisee)
	if assert.NotNil(t, got) {
		assert.Equal(t, uint64(2), *got)
	}
	// self-cancel without an advisor: nobody extra
	assert.Nil(t, CancelVisibility(loner, loner))
}
