package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/campuskit/room-reservation/internal/model"
)

// ActivityRepo persists the append-only audit log. Entries are only
// ever inserted and read; there is no update or delete path.
type ActivityRepo struct {
	db *sql.DB
}

// NewActivityRepo returns a new ActivityRepo bound to the given database.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

// Insert appends one entry. A zero CreatedAt is stamped with the
// current time; a non-zero one is preserved so fallback replays keep
// the original event time.
func (r *ActivityRepo) Insert(ctx context.Context, e *model.ActivityEntry) error {
	const q = `INSERT INTO activities (action, entity_type, entity_id, details, actor_id, visible_to_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	details := e.Details
	if details == nil {
		details = json.RawMessage(`{}`)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q, e.Action, e.EntityType, e.EntityID,
		[]byte(details), e.ActorID, e.VisibleToID, e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// HistoryFilter narrows a history query. Zero values mean "no filter".
// RequesterID/RequesterRole are mandatory: they drive the visibility
// restriction that every query path applies before pagination.
type HistoryFilter struct {
	EntityType    model.EntityType
	EntityID      uint64
	StartDate     *time.Time
	EndDate       *time.Time
	RequesterID   uint64
	RequesterRole model.Role
	Page          int
	PageSize      int
}

// Page is one page of history results together with the total count
// matching the filter.
type Page struct {
	Items    []model.ActivityEntry `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// visibilityClause is the SQL form of model.EntryVisibleTo. It is the
// single place the permission filter is written; every activity query
// (history and statistics) composes its WHERE clause through it so no
// query path can bypass the restriction.
func visibilityClause(requesterID uint64, role model.Role) (string, []any) {
	if role == model.RoleAdmin {
		return "1=1", nil
	}
	return "(actor_id = ? OR visible_to_id = ?)", []any{requesterID, requesterID}
}

func historyWhere(f HistoryFilter) (string, []any) {
	where, args := visibilityClause(f.RequesterID, f.RequesterRole)
	if f.EntityType != "" {
		where += " AND entity_type = ?"
		args = append(args, f.EntityType)
	}
	if f.EntityID != 0 {
		where += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}
	if f.StartDate != nil {
		where += " AND created_at >= ?"
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		where += " AND created_at < ?"
		args = append(args, f.EndDate.UTC())
	}
	return where, args
}

// History returns one page of audit entries the requester is allowed to
// see, newest first. The permission filter is applied in SQL before
// LIMIT/OFFSET so pagination counts only visible rows.
func (r *ActivityRepo) History(ctx context.Context, f HistoryFilter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	where, args := historyWhere(f)

	var total int
	countQ := `SELECT COUNT(*) FROM activities WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return Page{}, err
	}

	q := `SELECT id, action, entity_type, entity_id, details, actor_id, visible_to_id, created_at
	      FROM activities WHERE ` + where + `
	      ORDER BY created_at DESC, id DESC
	      LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := r.db.QueryContext(ctx, q, pageArgs...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	items := make([]model.ActivityEntry, 0, f.PageSize)
	for rows.Next() {
		var (
			e         model.ActivityEntry
			details   []byte
			actorID   sql.NullInt64
			visibleTo sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID,
			&details, &actorID, &visibleTo, &e.CreatedAt); err != nil {
			return Page{}, err
		}
		e.Details = json.RawMessage(details)
		if actorID.Valid {
			v := uint64(actorID.Int64)
			e.ActorID = &v
		}
		if visibleTo.Valid {
			v := uint64(visibleTo.Int64)
			e.VisibleToID = &v
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// ActionCount is one row of the aggregate statistics query.
type ActionCount struct {
	Action model.Action `json:"action"`
	Count  int          `json:"count"`
}

// Stats aggregates visible entries per action over the same filter the
// history query uses. Sharing historyWhere keeps the visibility
// restriction identical across query variants.
func (r *ActivityRepo) Stats(ctx context.Context, f HistoryFilter) ([]ActionCount, error) {
	where, args := historyWhere(f)
	q := `SELECT action, COUNT(*) FROM activities WHERE ` + where + `
	      GROUP BY action ORDER BY action`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ActionCount, 0)
	for rows.Next() {
		var ac ActionCount
		if err := rows.Scan(&ac.Action, &ac.Count); err != nil {
			return nil, err
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}
