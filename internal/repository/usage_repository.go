package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuskit/room-reservation/internal/model"
)

// UsageRepo persists room and computer occupancy records. Open sessions
// have a NULL ended_at; the "one open session per (resource, occupant)"
// rule is enforced by re-checking inside the caller's transaction, not
// by a unique constraint.
type UsageRepo struct {
	db *sql.DB
}

// NewUsageRepo returns a new UsageRepo bound to the given database.
func NewUsageRepo(db *sql.DB) *UsageRepo { return &UsageRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *UsageRepo) DB() *sql.DB { return r.db }

const usageColumns = `id, room_id, user_id, schedule_id, kind, started_at, ended_at, purpose, reason, created_at`

func scanUsage(scanner interface{ Scan(...any) error }) (model.RoomUsage, error) {
	var (
		u          model.RoomUsage
		scheduleID sql.NullInt64
		endedAt    sql.NullTime
		purpose    sql.NullString
		reason     sql.NullString
	)
	err := scanner.Scan(&u.ID, &u.RoomID, &u.UserID, &scheduleID, &u.Kind,
		&u.StartedAt, &endedAt, &purpose, &reason, &u.CreatedAt)
	if err != nil {
		return model.RoomUsage{}, err
	}
	if scheduleID.Valid {
		v := uint64(scheduleID.Int64)
		u.ScheduleID = &v
	}
	if endedAt.Valid {
		t := endedAt.Time
		u.EndedAt = &t
	}
	if purpose.Valid {
		p := purpose.String
		u.Purpose = &p
	}
	if reason.Valid {
		rs := reason.String
		u.Reason = &rs
	}
	return u, nil
}

// CreateTx inserts a usage record within a transaction and populates the
// generated ID.
func (r *UsageRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *model.RoomUsage) error {
	const q = `INSERT INTO room_usages (room_id, user_id, schedule_id, kind, started_at, ended_at, purpose, reason)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var endedAt any
	if u.EndedAt != nil {
		endedAt = u.EndedAt.UTC()
	}
	res, err := tx.ExecContext(ctx, q, u.RoomID, u.UserID, u.ScheduleID, u.Kind,
		u.StartedAt.UTC(), endedAt, u.Purpose, u.Reason)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByIDTx loads a usage record inside a transaction with a row lock.
func (r *UsageRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.RoomUsage, error) {
	const q = `SELECT ` + usageColumns + ` FROM room_usages WHERE id = ? FOR UPDATE`
	u, err := scanUsage(tx.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return model.RoomUsage{}, ErrUsageNotFound
	}
	return u, err
}

// HasOpenForUserTx reports whether the occupant already has an open
// session on the room. This is the creation-time re-check backing the
// single-open-session rule.
func (r *UsageRepo) HasOpenForUserTx(ctx context.Context, tx *sql.Tx, roomID, userID uint64) (bool, error) {
	const q = `SELECT COUNT(*) FROM room_usages WHERE room_id = ? AND user_id = ? AND ended_at IS NULL`
	var n int
	if err := tx.QueryRowContext(ctx, q, roomID, userID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountOpenByRoomTx counts the room's open sessions of any kind. The
// caller flips room status to IN_USE on the first open record and back
// to AVAILABLE when none remain.
func (r *UsageRepo) CountOpenByRoomTx(ctx context.Context, tx *sql.Tx, roomID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM room_usages WHERE room_id = ? AND ended_at IS NULL`
	var n int
	err := tx.QueryRowContext(ctx, q, roomID).Scan(&n)
	return n, err
}

// CloseTx stamps ended_at on an open usage record.
func (r *UsageRepo) CloseTx(ctx context.Context, tx *sql.Tx, id uint64, endedAt time.Time) error {
	const q = `UPDATE room_usages SET ended_at = ? WHERE id = ? AND ended_at IS NULL`
	_, err := tx.ExecContext(ctx, q, endedAt.UTC(), id)
	return err
}

// DeleteTx removes a usage record and its nested computer sessions.
// Deletion is an administrative override only; normal operation closes
// records instead.
func (r *UsageRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM computer_usages WHERE room_usage_id = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM room_usages WHERE id = ?`, id)
	return err
}

// ListByRoom returns a room's usage records, newest first.
func (r *UsageRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.RoomUsage, error) {
	const q = `SELECT ` + usageColumns + ` FROM room_usages WHERE room_id = ? ORDER BY started_at DESC`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RoomUsage, 0)
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---- computer usages ----

const computerUsageColumns = `id, computer_id, room_usage_id, user_id, started_at, ended_at, created_at`

func scanComputerUsage(scanner interface{ Scan(...any) error }) (model.ComputerUsage, error) {
	var (
		u       model.ComputerUsage
		endedAt sql.NullTime
	)
	err := scanner.Scan(&u.ID, &u.ComputerID, &u.RoomUsageID, &u.UserID,
		&u.StartedAt, &endedAt, &u.CreatedAt)
	if err != nil {
		return model.ComputerUsage{}, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		u.EndedAt = &t
	}
	return u, nil
}

// CreateComputerTx inserts a nested computer session within a
// transaction and populates the generated ID.
func (r *UsageRepo) CreateComputerTx(ctx context.Context, tx *sql.Tx, u *model.ComputerUsage) error {
	const q = `INSERT INTO computer_usages (computer_id, room_usage_id, user_id, started_at)
	           VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, u.ComputerID, u.RoomUsageID, u.UserID, u.StartedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetComputerUsageTx loads a computer session inside a transaction with
// a row lock.
func (r *UsageRepo) GetComputerUsageTx(ctx context.Context, tx *sql.Tx, id uint64) (model.ComputerUsage, error) {
	const q = `SELECT ` + computerUsageColumns + ` FROM computer_usages WHERE id = ? FOR UPDATE`
	u, err := scanComputerUsage(tx.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return model.ComputerUsage{}, ErrComputerUsageNotFound
	}
	return u, err
}

// HasOpenComputerForUserTx is the computer-level counterpart of
// HasOpenForUserTx.
func (r *UsageRepo) HasOpenComputerForUserTx(ctx context.Context, tx *sql.Tx, computerID, userID uint64) (bool, error) {
	const q = `SELECT COUNT(*) FROM computer_usages WHERE computer_id = ? AND user_id = ? AND ended_at IS NULL`
	var n int
	if err := tx.QueryRowContext(ctx, q, computerID, userID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CloseComputerTx stamps ended_at on an open computer session.
func (r *UsageRepo) CloseComputerTx(ctx context.Context, tx *sql.Tx, id uint64, endedAt time.Time) error {
	const q = `UPDATE computer_usages SET ended_at = ? WHERE id = ? AND ended_at IS NULL`
	_, err := tx.ExecContext(ctx, q, endedAt.UTC(), id)
	return err
}
