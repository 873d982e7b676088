package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jacentio/skutrail/history"
)

// HistoryStore implements history.Store on a history table.
type HistoryStore struct {
	db    DBTX
	table string
}

var _ history.Store = (*HistoryStore)(nil)

// NewHistoryStore returns a store on table, or on history.DefaultTableName
// when table is empty. The name may be schema qualified.
func NewHistoryStore(db DBTX, table string) *HistoryStore {
	if table == "" {
		table = history.DefaultTableName
	}
	return &HistoryStore{db: db, table: pgx.Identifier(strings.Split(table, ".")).Sanitize()}
}

const historyColumns = `id, old_sku, new_sku, subject_type, subject_id, event_type,
	actor_id, actor_type, metadata, reason, ip_address, user_agent, created_at`

// Append inserts r.
func (h *HistoryStore) Append(ctx context.Context, r *history.Record) error {
	_, err := h.db.Exec(ctx,
		`INSERT INTO `+h.table+` (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.OldSku, r.NewSku, r.SubjectType, r.SubjectID, string(r.EventType),
		r.ActorID, r.ActorType, r.Metadata, r.Reason, r.IPAddress, r.UserAgent, r.CreatedAt.UTC())
	return mapError(err)
}

// List returns the records matching f.
func (h *HistoryStore) List(ctx context.Context, f history.Filter) ([]history.Record, error) {
	where, args := historyWhere(f)
	query := `SELECT ` + historyColumns + ` FROM ` + h.table + where
	if f.Descending {
		query += ` ORDER BY created_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at, id`
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := h.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRecord)
}

func scanRecord(row pgx.CollectableRow) (history.Record, error) {
	var (
		r     history.Record
		event string
	)
	err := row.Scan(&r.ID, &r.OldSku, &r.NewSku, &r.SubjectType, &r.SubjectID, &event,
		&r.ActorID, &r.ActorType, &r.Metadata, &r.Reason, &r.IPAddress, &r.UserAgent, &r.CreatedAt)
	r.EventType = history.EventType(event)
	return r, err
}

// historyWhere builds the WHERE clause for f with positional arguments.
func historyWhere(f history.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if f.SubjectType != "" {
		add("subject_type = ?", f.SubjectType)
	}
	if f.SubjectID != "" {
		add("subject_id = ?", f.SubjectID)
	}
	if f.Sku != "" {
		add("(old_sku = ? OR new_sku = ?)", f.Sku)
	}
	if f.EventType != "" {
		add("event_type = ?", string(f.EventType))
	}
	if f.ActorID != "" {
		add("actor_id = ?", f.ActorID)
	}
	if f.ActorType != "" {
		add("actor_type = ?", f.ActorType)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC())
	}
	if !f.Before.IsZero() {
		add("created_at < ?", f.Before.UTC())
	}
	if !f.Until.IsZero() {
		add("created_at <= ?", f.Until.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// DeleteBefore removes records created before cutoff.
func (h *HistoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := h.db.Exec(ctx, `DELETE FROM `+h.table+` WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CountBefore counts records created before cutoff.
func (h *HistoryStore) CountBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := h.db.QueryRow(ctx, `SELECT count(*) FROM `+h.table+` WHERE created_at < $1`, cutoff.UTC()).Scan(&n)
	return n, err
}
