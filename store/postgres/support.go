package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday saves a holiday; an existing date is renamed.
func (q *queries) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO holidays (date, name)
        VALUES ($1, $2)
        ON CONFLICT (date) DO UPDATE SET name = EXCLUDED.name
    `, pgDate(h.Date), h.Name)
	if err != nil {
		return fmt.Errorf("holiday %s: %w", h.Date, translatePgError(err))
	}
	return nil
}

func (q *queries) DeleteHoliday(ctx context.Context, date generic.TimePoint) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM holidays WHERE date = $1`, pgDate(date))
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("holiday %s: %w", date, generic.ErrNotFound)
	}
	return nil
}

// HolidaysBetween returns holidays in [from, to] sorted by date.
func (q *queries) HolidaysBetween(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	rows, err := q.db.Query(ctx, `
        SELECT date, name FROM holidays
         WHERE date BETWEEN $1 AND $2
         ORDER BY date`, pgDate(from), pgDate(to))
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var (
			h    generic.Holiday
			date time.Time
		)
		if err := rows.Scan(&date, &h.Name); err != nil {
			return nil, err
		}
		h.Date = generic.DateOf(date.UTC())
		holidays = append(holidays, h)
	}
	return holidays, translatePgError(rows.Err())
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (q *queries) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	var payload []byte
	if len(e.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
	}
	_, err := q.db.Exec(ctx, `
        INSERT INTO audit_log (id, at, actor_id, action, employee_id, request_id, payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `,
		e.ID, e.At.UTC(), nullableText(string(e.ActorID)), string(e.Action),
		nullableText(string(e.EmployeeID)), nullableText(string(e.RequestID)), payload,
	)
	if err != nil {
		return fmt.Errorf("audit %s: %w", e.ID, translatePgError(err))
	}
	return nil
}

// QueryAudit returns entries newest first.
func (q *queries) QueryAudit(ctx context.Context, employee generic.EmployeeID, limit int) ([]generic.AuditEntry, error) {
	query := `SELECT id, at, actor_id, action, employee_id, request_id, payload FROM audit_log`
	var args []any
	if employee != "" {
		args = append(args, string(employee))
		query += ` WHERE employee_id = $1`
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e                            generic.AuditEntry
			action                       string
			actor, employeeID, requestID sql.NullString
			payload                      []byte
		)
		if err := rows.Scan(&e.ID, &e.At, &actor, &action, &employeeID, &requestID, &payload); err != nil {
			return nil, err
		}
		e.At = e.At.UTC()
		e.Action = generic.AuditAction(action)
		e.ActorID = generic.EmployeeID(actor.String)
		e.EmployeeID = generic.EmployeeID(employeeID.String)
		e.RequestID = generic.RequestID(requestID.String)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, translatePgError(rows.Err())
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func (q *queries) SaveReconciliationRun(ctx context.Context, run generic.ReconciliationRun) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO reconciliation_runs (id, trigger_source, started_at, completed_at, processed, failed)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, run.ID, run.Trigger, run.StartedAt.UTC(), run.CompletedAt.UTC(), run.Processed, run.Failed)
	if err != nil {
		return fmt.Errorf("reconciliation run %s: %w", run.ID, translatePgError(err))
	}
	return nil
}

func (q *queries) ListReconciliationRuns(ctx context.Context, limit int) ([]generic.ReconciliationRun, error) {
	query := `
        SELECT id, trigger_source, started_at, completed_at, processed, failed
          FROM reconciliation_runs
         ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var runs []generic.ReconciliationRun
	for rows.Next() {
		var run generic.ReconciliationRun
		if err := rows.Scan(&run.ID, &run.Trigger, &run.StartedAt, &run.CompletedAt, &run.Processed, &run.Failed); err != nil {
			return nil, err
		}
		run.StartedAt = run.StartedAt.UTC()
		run.CompletedAt = run.CompletedAt.UTC()
		runs = append(runs, run)
	}
	return runs, translatePgError(rows.Err())
}
