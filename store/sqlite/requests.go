package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// VACATION REQUESTS
// =============================================================================

const requestColumns = `
	id, employee_id, start_date, end_date, days_requested, days_override, business_days,
	status, reason, processed_by, processed_at, requested_at, updated_at, version`

func (q *queries) InsertRequest(ctx context.Context, r generic.Request) error {
	query := `
		INSERT INTO vacation_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var override sql.NullInt64
	if r.DaysOverride != nil {
		override = sql.NullInt64{Int64: int64(*r.DaysOverride), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, query,
		r.ID, r.EmployeeID, r.StartDate.String(), r.EndDate.String(),
		r.DaysRequested, override, r.BusinessDays,
		r.Status, nullString(r.Reason), processedBy(r), processedAt(r),
		formatTime(r.RequestedAt), formatTime(r.UpdatedAt), r.Version,
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("request %s: %w", r.ID, generic.ErrAlreadyExists)
	}
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("employee %s: %w", r.EmployeeID, generic.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by ID.
func (q *queries) GetRequest(ctx context.Context, id generic.RequestID) (*generic.Request, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM vacation_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) ListRequestsByEmployee(ctx context.Context, id generic.EmployeeID, statuses ...generic.RequestStatus) ([]generic.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM vacation_requests WHERE employee_id = ?`
	args := []any{id}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY start_date, id`
	return q.queryRequests(ctx, query, args...)
}

func (q *queries) ListRequestsByStatus(ctx context.Context, status generic.RequestStatus) ([]generic.Request, error) {
	return q.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM vacation_requests WHERE status = ? ORDER BY start_date, id`, status)
}

// FindApprovedOverlapping uses inclusive bounds on both ends.
func (q *queries) FindApprovedOverlapping(ctx context.Context, id generic.EmployeeID, p generic.Period, excluding generic.RequestID) ([]generic.Request, error) {
	query := `
		SELECT ` + requestColumns + ` FROM vacation_requests
		WHERE employee_id = ? AND status = 'approved'
		  AND start_date <= ? AND end_date >= ?
		  AND id != ?
		ORDER BY start_date, id
	`
	return q.queryRequests(ctx, query, id, p.End.String(), p.Start.String(), excluding)
}

// UpdateRequestStatus writes the transition guarded by version and status,
// then claims or releases the request's days in approved_days. A day
// already claimed by another approved request fails with OverlapError.
func (q *queries) UpdateRequestStatus(ctx context.Context, r generic.Request, from generic.RequestStatus) error {
	query := `
		UPDATE vacation_requests
		SET status = ?, reason = ?, processed_by = ?, processed_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ? AND status = ?
	`
	res, err := q.db.ExecContext(ctx, query,
		r.Status, nullString(r.Reason), processedBy(r), processedAt(r), formatTime(r.UpdatedAt),
		r.ID, r.Version, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := q.GetRequest(ctx, r.ID); err != nil {
			return err
		}
		return fmt.Errorf("request %s changed since version %d: %w", r.ID, r.Version, generic.ErrConcurrencyConflict)
	}

	switch {
	case r.Status == generic.RequestApproved && from != generic.RequestApproved:
		return q.claimDays(ctx, r)
	case from == generic.RequestApproved && r.Status != generic.RequestApproved:
		if _, err := q.db.ExecContext(ctx, `DELETE FROM approved_days WHERE request_id = ?`, r.ID); err != nil {
			return fmt.Errorf("failed to release days: %w", err)
		}
	}
	return nil
}

func (q *queries) claimDays(ctx context.Context, r generic.Request) error {
	if !r.Period().WithinMaxSpan() {
		return fmt.Errorf("%w: %s exceeds %d days", generic.ErrInvalidDateRange, r.Period(), generic.MaxPeriodDays)
	}
	for _, day := range r.Period().Days() {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO approved_days (employee_id, day, request_id) VALUES (?, ?, ?)`,
			r.EmployeeID, day.String(), r.ID)
		if isApprovedDayError(err) {
			return q.overlapError(ctx, r)
		}
		if err != nil {
			return fmt.Errorf("failed to claim day %s: %w", day, err)
		}
	}
	return nil
}

func (q *queries) overlapError(ctx context.Context, r generic.Request) error {
	oe := &generic.OverlapError{EmployeeID: r.EmployeeID, Period: r.Period()}
	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT request_id FROM approved_days
		WHERE employee_id = ? AND day >= ? AND day <= ? AND request_id != ?
		ORDER BY request_id`,
		r.EmployeeID, r.StartDate.String(), r.EndDate.String(), r.ID)
	if err != nil {
		return oe
	}
	defer rows.Close()
	for rows.Next() {
		var id generic.RequestID
		if rows.Scan(&id) == nil {
			oe.Conflicting = append(oe.Conflicting, id)
		}
	}
	return oe
}

func (q *queries) queryRequests(ctx context.Context, query string, args ...any) ([]generic.Request, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []generic.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(row scanner) (generic.Request, error) {
	var (
		r           generic.Request
		startDate   string
		endDate     string
		override    sql.NullInt64
		reason      sql.NullString
		processedBy sql.NullString
		processedAt sql.NullString
		requestedAt string
		updatedAt   string
	)
	err := row.Scan(
		&r.ID, &r.EmployeeID, &startDate, &endDate, &r.DaysRequested, &override, &r.BusinessDays,
		&r.Status, &reason, &processedBy, &processedAt, &requestedAt, &updatedAt, &r.Version,
	)
	if err != nil {
		return r, err
	}
	r.StartDate = parseDate(sql.NullString{String: startDate, Valid: true})
	r.EndDate = parseDate(sql.NullString{String: endDate, Valid: true})
	if override.Valid {
		days := int(override.Int64)
		r.DaysOverride = &days
	}
	r.Reason = reason.String
	if processedBy.Valid {
		by := generic.EmployeeID(processedBy.String)
		r.ProcessedBy = &by
	}
	if processedAt.Valid {
		at := parseTime(processedAt.String)
		r.ProcessedAt = &at
	}
	r.RequestedAt = parseTime(requestedAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func processedBy(r generic.Request) sql.NullString {
	if r.ProcessedBy == nil {
		return sql.NullString{}
	}
	return nullString(string(*r.ProcessedBy))
}

func processedAt(r generic.Request) sql.NullString {
	if r.ProcessedAt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: r.ProcessedAt.UTC().Format(time.RFC3339Nano), Valid: true}
}
