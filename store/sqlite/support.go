package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday saves a holiday; an existing date is renamed.
func (q *queries) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	query := `
		INSERT INTO holidays (date, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET name = excluded.name
	`
	_, err := q.db.ExecContext(ctx, query, h.Date.String(), h.Name, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (q *queries) DeleteHoliday(ctx context.Context, date generic.TimePoint) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM holidays WHERE date = ?`, date.String())
	return expectOne(res, err, fmt.Errorf("holiday %s: %w", date, generic.ErrNotFound))
}

// HolidaysBetween returns holidays in [from, to] sorted by date.
func (q *queries) HolidaysBetween(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT date, name FROM holidays
		WHERE date >= ? AND date <= ?
		ORDER BY date`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var (
			h    generic.Holiday
			date string
		)
		if err := rows.Scan(&date, &h.Name); err != nil {
			return nil, err
		}
		h.Date, _ = generic.ParseDate(date)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
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
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, actor_id, action, employee_id, request_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.At), nullString(string(e.ActorID)), e.Action,
		nullString(string(e.EmployeeID)), nullString(string(e.RequestID)), nullString(string(payload)),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns entries newest first.
func (q *queries) QueryAudit(ctx context.Context, employee generic.EmployeeID, limit int) ([]generic.AuditEntry, error) {
	query := `SELECT id, at, actor_id, action, employee_id, request_id, payload_json FROM audit_log`
	var args []any
	if employee != "" {
		query += ` WHERE employee_id = ?`
		args = append(args, employee)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e                            generic.AuditEntry
			at                           string
			actor, employeeID, requestID sql.NullString
			payload                      sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &actor, &e.Action, &employeeID, &requestID, &payload); err != nil {
			return nil, err
		}
		e.At = parseTime(at)
		e.ActorID = generic.EmployeeID(actor.String)
		e.EmployeeID = generic.EmployeeID(employeeID.String)
		e.RequestID = generic.RequestID(requestID.String)
		if payload.String != "" {
			_ = json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func (q *queries) SaveReconciliationRun(ctx context.Context, run generic.ReconciliationRun) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (id, trigger_source, started_at, completed_at, processed, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger, formatTime(run.StartedAt), formatTime(run.CompletedAt), run.Processed, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to save reconciliation run: %w", err)
	}
	return nil
}

func (q *queries) ListReconciliationRuns(ctx context.Context, limit int) ([]generic.ReconciliationRun, error) {
	query := `
		SELECT id, trigger_source, started_at, completed_at, processed, failed
		FROM reconciliation_runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation runs: %w", err)
	}
	defer rows.Close()

	var runs []generic.ReconciliationRun
	for rows.Next() {
		var (
			run                    generic.ReconciliationRun
			startedAt, completedAt string
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &startedAt, &completedAt, &run.Processed, &run.Failed); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(startedAt)
		run.CompletedAt = parseTime(completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
