package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/campuskit/room-reservation/internal/model"
)

// ScheduleRepo provides persistence for reservations, including the
// interval-overlap queries that back conflict detection. All timestamp
// fields are stored in UTC.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo returns a new ScheduleRepo bound to the given database.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *ScheduleRepo) DB() *sql.DB { return r.db }

const scheduleColumns = `id, room_id, title, starts_at, ends_at, repeat_kind, status, creator_id, created_at, updated_at`

func scanSchedule(scanner interface{ Scan(...any) error }) (model.Schedule, error) {
	var s model.Schedule
	err := scanner.Scan(&s.ID, &s.RoomID, &s.Title, &s.StartsAt, &s.EndsAt,
		&s.Repeat, &s.Status, &s.CreatorID, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID and timestamps on the
// provided record. The caller must commit or roll back the transaction.
func (r *ScheduleRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Schedule) error {
	const q = `INSERT INTO schedules (room_id, title, starts_at, ends_at, repeat_kind, status, creator_id)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, s.RoomID, s.Title, s.StartsAt.UTC(), s.EndsAt.UTC(),
		s.Repeat, s.Status, s.CreatorID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	// Read the row back so defaults and timestamps are populated.
	const sel = `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	got, err := scanSchedule(tx.QueryRowContext(ctx, sel, s.ID))
	if err != nil {
		return err
	}
	*s = got
	return nil
}

// GetByID returns a single reservation.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uint64) (model.Schedule, error) {
	const q = `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	s, err := scanSchedule(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return model.Schedule{}, ErrScheduleNotFound
	}
	return s, err
}

// GetByIDTx loads a reservation inside a transaction, locking the row so
// concurrent transitions serialize on the database.
func (r *ScheduleRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Schedule, error) {
	const q = `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ? FOR UPDATE`
	s, err := scanSchedule(tx.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return model.Schedule{}, ErrScheduleNotFound
	}
	return s, err
}

// UpdateStatusTx transitions a reservation's status within a
// transaction. Legality of the transition is the caller's concern.
func (r *ScheduleRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ScheduleStatus) error {
	const q = `UPDATE schedules SET status = ?, updated_at = NOW() WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, status, id)
	return err
}

// activeStatuses are the reservation states that occupy a room's
// calendar. Terminal reservations never conflict.
var activeStatuses = []model.ScheduleStatus{model.SchedulePending, model.ScheduleApproved}

// blockingStatuses additionally include completed reservations; used by
// maintenance windows, which may not overlap anything that was not
// rejected or cancelled.
var blockingStatuses = []model.ScheduleStatus{model.SchedulePending, model.ScheduleApproved, model.ScheduleCompleted}

// overlapQuery builds the shared interval query. The comparison is
// half-open on [start, end): a reservation ending exactly at `start` or
// starting exactly at `end` does not count as an overlap.
func overlapQuery(statuses []model.ScheduleStatus, excludeID uint64) (string, func(roomID uint64, start, end time.Time) []any) {
	marks := make([]string, len(statuses))
	for i := range statuses {
		marks[i] = "?"
	}
	q := `SELECT ` + scheduleColumns + ` FROM schedules
	      WHERE room_id = ? AND status IN (` + strings.Join(marks, ",") + `)
	        AND starts_at < ? AND ends_at > ?`
	if excludeID != 0 {
		q += ` AND id != ?`
	}
	q += ` ORDER BY starts_at`
	return q, func(roomID uint64, start, end time.Time) []any {
		args := []any{roomID}
		for _, st := range statuses {
			args = append(args, st)
		}
		args = append(args, end.UTC(), start.UTC())
		if excludeID != 0 {
			args = append(args, excludeID)
		}
		return args
	}
}

func collectSchedules(rows *sql.Rows) ([]model.Schedule, error) {
	defer rows.Close()
	out := make([]model.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindOverlaps returns every pending or approved reservation of the room
// whose window intersects [start, end). excludeID, when non-zero, drops
// that reservation from the candidate set (re-validating an edit). The
// full list is returned so callers can report which reservations
// conflict. No side effects.
func (r *ScheduleRepo) FindOverlaps(ctx context.Context, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Schedule, error) {
	q, args := overlapQuery(activeStatuses, excludeID)
	rows, err := r.db.QueryContext(ctx, q, args(roomID, start, end)...)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// FindOverlapsTx re-runs the overlap check inside the admission
// transaction. Two concurrent creates for overlapping windows constitute
// a race the detector alone cannot close, so the check is repeated on
// the transaction before committing.
func (r *ScheduleRepo) FindOverlapsTx(ctx context.Context, tx *sql.Tx, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Schedule, error) {
	q, args := overlapQuery(activeStatuses, excludeID)
	rows, err := tx.QueryContext(ctx, q, args(roomID, start, end)...)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// FindBlockingOverlapsTx is the maintenance variant: it matches every
// reservation that was not rejected or cancelled.
func (r *ScheduleRepo) FindBlockingOverlapsTx(ctx context.Context, tx *sql.Tx, roomID uint64, start, end time.Time) ([]model.Schedule, error) {
	q, args := overlapQuery(blockingStatuses, 0)
	rows, err := tx.QueryContext(ctx, q, args(roomID, start, end)...)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// ListByCreator returns a user's reservations, newest first.
func (r *ScheduleRepo) ListByCreator(ctx context.Context, creatorID uint64) ([]model.Schedule, error) {
	const q = `SELECT ` + scheduleColumns + ` FROM schedules WHERE creator_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, creatorID)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// ListByRoom returns a room's reservations, newest first.
func (r *ScheduleRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.Schedule, error) {
	const q = `SELECT ` + scheduleColumns + ` FROM schedules WHERE room_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// ListByAdvisor returns reservations created by any student supervised
// by the given teacher, newest first. Backs the teacher view of the
// schedule list.
func (r *ScheduleRepo) ListByAdvisor(ctx context.Context, advisorID uint64) ([]model.Schedule, error) {
	const q = `SELECT s.id, s.room_id, s.title, s.starts_at, s.ends_at, s.repeat_kind, s.status, s.creator_id, s.created_at, s.updated_at
	           FROM schedules s
	           JOIN users u ON u.id = s.creator_id
	           WHERE u.advisor_id = ?
	           ORDER BY s.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, advisorID)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}
