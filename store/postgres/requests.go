package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// VACATION REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, start_date, end_date, days_requested, days_override, business_days,
               status, reason, processed_by, processed_at, requested_at, updated_at, version`

func (q *queries) InsertRequest(ctx context.Context, r generic.Request) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO vacation_requests (`+requestColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `,
		string(r.ID), string(r.EmployeeID), pgDate(r.StartDate), pgDate(r.EndDate),
		r.DaysRequested, overrideValue(r), r.BusinessDays,
		string(r.Status), nullableText(r.Reason), processedByValue(r), processedAtValue(r),
		r.RequestedAt.UTC(), r.UpdatedAt.UTC(), r.Version,
	)
	if err != nil {
		return fmt.Errorf("request %s: %w", r.ID, translatePgError(err))
	}
	return nil
}

func (q *queries) GetRequest(ctx context.Context, id generic.RequestID) (*generic.Request, error) {
	row := q.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM vacation_requests WHERE id = $1`, string(id))
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, translatePgError(err)
	}
	return &r, nil
}

func (q *queries) ListRequestsByEmployee(ctx context.Context, id generic.EmployeeID, statuses ...generic.RequestStatus) ([]generic.Request, error) {
	args := []any{string(id)}
	conditions := []string{"employee_id = $1"}
	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, st := range statuses {
			args = append(args, string(st))
			placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	query := `SELECT ` + requestColumns + ` FROM vacation_requests WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY start_date, id`
	return q.queryRequests(ctx, query, args...)
}

func (q *queries) ListRequestsByStatus(ctx context.Context, status generic.RequestStatus) ([]generic.Request, error) {
	return q.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM vacation_requests WHERE status = $1 ORDER BY start_date, id`, string(status))
}

// FindApprovedOverlapping uses the same inclusive daterange as the
// exclusion constraint.
func (q *queries) FindApprovedOverlapping(ctx context.Context, id generic.EmployeeID, p generic.Period, excluding generic.RequestID) ([]generic.Request, error) {
	return q.queryRequests(ctx, `
        SELECT `+requestColumns+`
          FROM vacation_requests
         WHERE employee_id = $1
           AND status = 'approved'
           AND daterange(start_date, end_date, '[]') && daterange($2::date, $3::date, '[]')
           AND id <> $4
         ORDER BY start_date, id`,
		string(id), pgDate(p.Start), pgDate(p.End), string(excluding))
}

// UpdateRequestStatus writes the transition guarded by version and status.
// Approvals check for overlapping approved rows first so the error can name
// them; the exclusion constraint catches anything that slips past.
func (q *queries) UpdateRequestStatus(ctx context.Context, r generic.Request, from generic.RequestStatus) error {
	if r.Status == generic.RequestApproved && from != generic.RequestApproved {
		conflicts, err := q.FindApprovedOverlapping(ctx, r.EmployeeID, r.Period(), r.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			oe := &generic.OverlapError{EmployeeID: r.EmployeeID, Period: r.Period()}
			for _, c := range conflicts {
				oe.Conflicting = append(oe.Conflicting, c.ID)
			}
			return oe
		}
	}

	tag, err := q.db.Exec(ctx, `
        UPDATE vacation_requests
           SET status = $1,
               reason = $2,
               processed_by = $3,
               processed_at = $4,
               updated_at = $5,
               version = version + 1
         WHERE id = $6 AND version = $7 AND status = $8
    `,
		string(r.Status), nullableText(r.Reason), processedByValue(r), processedAtValue(r), r.UpdatedAt.UTC(),
		string(r.ID), r.Version, string(from),
	)
	if err != nil {
		err = translatePgError(err)
		if errors.Is(err, generic.ErrOverlapConflict) {
			return &generic.OverlapError{EmployeeID: r.EmployeeID, Period: r.Period()}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := q.GetRequest(ctx, r.ID); err != nil {
			return err
		}
		return fmt.Errorf("request %s changed since version %d: %w", r.ID, r.Version, generic.ErrConcurrencyConflict)
	}
	return nil
}

func (q *queries) queryRequests(ctx context.Context, query string, args ...any) ([]generic.Request, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var requests []generic.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, translatePgError(err)
		}
		requests = append(requests, r)
	}
	return requests, translatePgError(rows.Err())
}

func scanRequest(row pgx.Row) (generic.Request, error) {
	var (
		r           generic.Request
		id          string
		employeeID  string
		startDate   time.Time
		endDate     time.Time
		override    sql.NullInt64
		status      string
		reason      sql.NullString
		processedBy sql.NullString
		processedAt sql.NullTime
		requestedAt time.Time
		updatedAt   time.Time
	)
	err := row.Scan(
		&id, &employeeID, &startDate, &endDate, &r.DaysRequested, &override, &r.BusinessDays,
		&status, &reason, &processedBy, &processedAt, &requestedAt, &updatedAt, &r.Version,
	)
	if err != nil {
		return r, err
	}
	r.ID = generic.RequestID(id)
	r.EmployeeID = generic.EmployeeID(employeeID)
	r.StartDate = generic.DateOf(startDate.UTC())
	r.EndDate = generic.DateOf(endDate.UTC())
	if override.Valid {
		days := int(override.Int64)
		r.DaysOverride = &days
	}
	r.Status = generic.RequestStatus(status)
	r.Reason = reason.String
	if processedBy.Valid {
		by := generic.EmployeeID(processedBy.String)
		r.ProcessedBy = &by
	}
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		r.ProcessedAt = &at
	}
	r.RequestedAt = requestedAt.UTC()
	r.UpdatedAt = updatedAt.UTC()
	return r, nil
}

func overrideValue(r generic.Request) any {
	if r.DaysOverride == nil {
		return nil
	}
	return *r.DaysOverride
}

func processedByValue(r generic.Request) any {
	if r.ProcessedBy == nil {
		return nil
	}
	return string(*r.ProcessedBy)
}

func processedAtValue(r generic.Request) any {
	if r.ProcessedAt == nil {
		return nil
	}
	return r.ProcessedAt.UTC()
}
