package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// EMPLOYEES AND EMBEDDED BALANCE
// =============================================================================

const employeeColumns = `
	id, name, email, hire_date, balance_total, balance_used, balance_last_update,
	balance_version, granted_service_years, created_at`

func (q *queries) CreateEmployee(ctx context.Context, e generic.Employee) error {
	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		e.ID, e.Name, nullString(e.Email), formatDate(e.HireDate),
		e.Balance.Total, e.Balance.Used, formatTime(e.Balance.LastUpdate),
		e.Balance.Version, e.GrantedServiceYears, formatTime(e.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("employee %s: %w", e.ID, generic.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID.
func (q *queries) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmployees returns all employees ordered by ID.
func (q *queries) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []generic.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (q *queries) SetHireDate(ctx context.Context, id generic.EmployeeID, hireDate generic.TimePoint) error {
	res, err := q.db.ExecContext(ctx, `UPDATE employees SET hire_date = ? WHERE id = ?`, formatDate(hireDate), id)
	return expectOne(res, err, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound))
}

func (q *queries) SetGrantedServiceYears(ctx context.Context, id generic.EmployeeID, years int) error {
	res, err := q.db.ExecContext(ctx, `UPDATE employees SET granted_service_years = ? WHERE id = ?`, years, id)
	return expectOne(res, err, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound))
}

// UpdateBalance writes the embedded balance if balance_version still matches.
func (q *queries) UpdateBalance(ctx context.Context, id generic.EmployeeID, b generic.Balance) error {
	query := `
		UPDATE employees
		SET balance_total = ?, balance_used = ?, balance_last_update = ?,
			balance_version = balance_version + 1
		WHERE id = ? AND balance_version = ?
	`
	res, err := q.db.ExecContext(ctx, query, b.Total, b.Used, formatTime(b.LastUpdate), id, b.Version)
	if isCheckConstraintError(err) {
		return &generic.BelowUsedFloorError{Total: b.Total, Used: b.Used}
	}
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := q.GetEmployee(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("balance of %s changed since version %d: %w", id, b.Version, generic.ErrConcurrencyConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (generic.Employee, error) {
	var (
		e          generic.Employee
		email      sql.NullString
		hireDate   sql.NullString
		lastUpdate sql.NullString
		createdAt  string
	)
	err := row.Scan(
		&e.ID, &e.Name, &email, &hireDate,
		&e.Balance.Total, &e.Balance.Used, &lastUpdate, &e.Balance.Version,
		&e.GrantedServiceYears, &createdAt,
	)
	if err != nil {
		return e, err
	}
	e.Email = email.String
	e.HireDate = parseDate(hireDate)
	e.Balance.LastUpdate = parseTime(lastUpdate.String)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// UpsertLedgerRecord replaces the employee's mirror row. Remaining is
// recomputed from total and used on every write.
func (q *queries) UpsertLedgerRecord(ctx context.Context, rec generic.LedgerRecord) error {
	query := `
		INSERT INTO balance_ledger (employee_id, total, used, remaining, last_update)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			total = excluded.total,
			used = excluded.used,
			remaining = excluded.remaining,
			last_update = excluded.last_update
	`
	remaining := generic.Balance{Total: rec.Total, Used: rec.Used}.Remaining()
	_, err := q.db.ExecContext(ctx, query, rec.EmployeeID, rec.Total, rec.Used, remaining, formatTime(rec.LastUpdate))
	if err != nil {
		return fmt.Errorf("failed to upsert ledger record: %w", err)
	}
	return nil
}

func (q *queries) GetLedgerRecord(ctx context.Context, id generic.EmployeeID) (*generic.LedgerRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT employee_id, total, used, remaining, last_update
		FROM balance_ledger WHERE employee_id = ?`, id)
	rec, err := scanLedgerRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger record %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (q *queries) ListLedgerRecords(ctx context.Context) ([]generic.LedgerRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT employee_id, total, used, remaining, last_update
		FROM balance_ledger ORDER BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var records []generic.LedgerRecord
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanLedgerRecord(row scanner) (generic.LedgerRecord, error) {
	var (
		rec        generic.LedgerRecord
		lastUpdate string
	)
	if err := row.Scan(&rec.EmployeeID, &rec.Total, &rec.Used, &rec.Remaining, &lastUpdate); err != nil {
		return rec, err
	}
	rec.LastUpdate = parseTime(lastUpdate)
	return rec, nil
}

// expectOne turns a zero-row update into notFound.
func expectOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}
