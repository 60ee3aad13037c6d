package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// EMPLOYEES AND EMBEDDED BALANCE
// =============================================================================

const employeeColumns = `id, name, email, hire_date, balance_total, balance_used, balance_last_update,
               balance_version, granted_service_years, created_at`

func (q *queries) CreateEmployee(ctx context.Context, e generic.Employee) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO employees (`+employeeColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `,
		string(e.ID), e.Name, nullableText(e.Email), pgDate(e.HireDate),
		e.Balance.Total, e.Balance.Used, nullableTime(e.Balance.LastUpdate),
		e.Balance.Version, e.GrantedServiceYears, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("employee %s: %w", e.ID, translatePgError(err))
	}
	return nil
}

func (q *queries) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	row := q.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, string(id))
	e, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, translatePgError(err)
	}
	return &e, nil
}

func (q *queries) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := q.db.Query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var employees []generic.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, translatePgError(err)
		}
		employees = append(employees, e)
	}
	return employees, translatePgError(rows.Err())
}

func (q *queries) SetHireDate(ctx context.Context, id generic.EmployeeID, hireDate generic.TimePoint) error {
	tag, err := q.db.Exec(ctx, `UPDATE employees SET hire_date = $1 WHERE id = $2`, pgDate(hireDate), string(id))
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

func (q *queries) SetGrantedServiceYears(ctx context.Context, id generic.EmployeeID, years int) error {
	tag, err := q.db.Exec(ctx, `UPDATE employees SET granted_service_years = $1 WHERE id = $2`, years, string(id))
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

// UpdateBalance writes the embedded balance if balance_version still matches.
func (q *queries) UpdateBalance(ctx context.Context, id generic.EmployeeID, b generic.Balance) error {
	tag, err := q.db.Exec(ctx, `
        UPDATE employees
           SET balance_total = $1,
               balance_used = $2,
               balance_last_update = $3,
               balance_version = balance_version + 1
         WHERE id = $4 AND balance_version = $5
    `, b.Total, b.Used, nullableTime(b.LastUpdate), string(id), b.Version)
	if err != nil {
		err = translatePgError(err)
		if errors.Is(err, generic.ErrBelowUsedFloor) {
			return &generic.BelowUsedFloorError{Total: b.Total, Used: b.Used}
		}
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := q.GetEmployee(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("balance of %s changed since version %d: %w", id, b.Version, generic.ErrConcurrencyConflict)
}

func scanEmployee(row pgx.Row) (generic.Employee, error) {
	var (
		e          generic.Employee
		id         string
		email      sql.NullString
		hireDate   sql.NullTime
		lastUpdate sql.NullTime
		createdAt  time.Time
	)
	err := row.Scan(
		&id, &e.Name, &email, &hireDate,
		&e.Balance.Total, &e.Balance.Used, &lastUpdate, &e.Balance.Version,
		&e.GrantedServiceYears, &createdAt,
	)
	if err != nil {
		return e, err
	}
	e.ID = generic.EmployeeID(id)
	e.Email = email.String
	if hireDate.Valid {
		e.HireDate = generic.DateOf(hireDate.Time.UTC())
	}
	if lastUpdate.Valid {
		e.Balance.LastUpdate = lastUpdate.Time.UTC()
	}
	e.CreatedAt = createdAt.UTC()
	return e, nil
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// UpsertLedgerRecord replaces the employee's mirror row. Remaining is
// recomputed from total and used on every write.
func (q *queries) UpsertLedgerRecord(ctx context.Context, rec generic.LedgerRecord) error {
	remaining := generic.Balance{Total: rec.Total, Used: rec.Used}.Remaining()
	_, err := q.db.Exec(ctx, `
        INSERT INTO balance_ledger (employee_id, total, used, remaining, last_update)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (employee_id) DO UPDATE
           SET total = EXCLUDED.total,
               used = EXCLUDED.used,
               remaining = EXCLUDED.remaining,
               last_update = EXCLUDED.last_update
    `, string(rec.EmployeeID), rec.Total, rec.Used, remaining, rec.LastUpdate.UTC())
	if err != nil {
		return fmt.Errorf("ledger %s: %w", rec.EmployeeID, translatePgError(err))
	}
	return nil
}

func (q *queries) GetLedgerRecord(ctx context.Context, id generic.EmployeeID) (*generic.LedgerRecord, error) {
	row := q.db.QueryRow(ctx, `
        SELECT employee_id, total, used, remaining, last_update
          FROM balance_ledger WHERE employee_id = $1`, string(id))
	rec, err := scanLedgerRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ledger record %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, translatePgError(err)
	}
	return &rec, nil
}

func (q *queries) ListLedgerRecords(ctx context.Context) ([]generic.LedgerRecord, error) {
	rows, err := q.db.Query(ctx, `
        SELECT employee_id, total, used, remaining, last_update
          FROM balance_ledger ORDER BY employee_id`)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var records []generic.LedgerRecord
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, translatePgError(err)
		}
		records = append(records, rec)
	}
	return records, translatePgError(rows.Err())
}

func scanLedgerRecord(row pgx.Row) (generic.LedgerRecord, error) {
	var (
		rec        generic.LedgerRecord
		id         string
		lastUpdate time.Time
	)
	if err := row.Scan(&id, &rec.Total, &rec.Used, &rec.Remaining, &lastUpdate); err != nil {
		return rec, err
	}
	rec.EmployeeID = generic.EmployeeID(id)
	rec.LastUpdate = lastUpdate.UTC()
	return rec, nil
}
