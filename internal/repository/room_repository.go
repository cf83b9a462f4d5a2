package repository

import (
	"context"
	"database/sql"

	"github.com/campuskit/room-reservation/internal/model"
)

// RoomRepo provides read access to rooms and computers plus the status
// updates owned by the scheduling and occupancy flows. Room inventory
// itself (create/update/delete) belongs to the administration
// collaborator and is intentionally absent here.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo constructs a RoomRepo with the given DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions.
func (r *RoomRepo) DB() *sql.DB { return r.db }

const roomColumns = `id, name, capacity, location, status, is_active, created_at, updated_at`

func scanRoom(row *sql.Row) (model.Room, error) {
	var rm model.Room
	err := row.Scan(&rm.ID, &rm.Name, &rm.Capacity, &rm.Location, &rm.Status,
		&rm.IsActive, &rm.CreatedAt, &rm.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Room{}, ErrRoomNotFound
	}
	return rm, err
}

// GetByID returns a single room regardless of its active flag.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (model.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`
	return scanRoom(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx loads a room inside a transaction regardless of its active
// flag, locking the row. Cancellation must still release a room that
// inventory has since deactivated.
func (r *RoomRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE id = ? FOR UPDATE`
	return scanRoom(tx.QueryRowContext(ctx, q, id))
}

// GetActiveTx loads an active room inside a transaction, locking the row
// so a concurrent status flip cannot interleave with ours.
func (r *RoomRepo) GetActiveTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE id = ? AND is_active = 1 FOR UPDATE`
	return scanRoom(tx.QueryRowContext(ctx, q, id))
}

// List returns all active rooms ordered by name.
func (r *RoomRepo) List(ctx context.Context) ([]model.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE is_active = 1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Room, 0)
	for rows.Next() {
		var rm model.Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Capacity, &rm.Location, &rm.Status,
			&rm.IsActive, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// UpdateStatusTx sets the live status of a room within a transaction.
func (r *RoomRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.RoomStatus) error {
	const q = `UPDATE rooms SET status = ?, updated_at = NOW() WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, status, id)
	return err
}

// GetComputerTx loads an active computer and verifies it belongs to the
// given room. Returns ErrComputerNotFound when absent, inactive or in a
// different room.
func (r *RoomRepo) GetComputerTx(ctx context.Context, tx *sql.Tx, computerID, roomID uint64) (model.Computer, error) {
	const q = `SELECT id, room_id, label, is_active, created_at, updated_at
	           FROM computers WHERE id = ? AND room_id = ? AND is_active = 1`
	var c model.Computer
	err := tx.QueryRowContext(ctx, q, computerID, roomID).Scan(
		&c.ID, &c.RoomID, &c.Label, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Computer{}, ErrComputerNotFound
	}
	return c, err
}

// ListComputers returns the active computers of a room ordered by label.
func (r *RoomRepo) ListComputers(ctx context.Context, roomID uint64) ([]model.Computer, error) {
	const q = `SELECT id, room_id, label, is_active, created_at, updated_at
	           FROM computers WHERE room_id = ? AND is_active = 1 ORDER BY label`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Computer, 0)
	for rows.Next() {
		var c model.Computer
		if err := rows.Scan(&c.ID, &c.RoomID, &c.Label, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
