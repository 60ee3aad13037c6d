// Package report renders the balance ledger as an XLSX workbook for HR.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

const SheetName = "Balances"

var header = []any{
	"Employee ID", "Name", "Hire Date", "Years of Service", "Current Entitlement",
	"Total", "Used", "Remaining", "Last Update",
}

// BalanceRow is one line of the export.
type BalanceRow struct {
	EmployeeID         generic.EmployeeID
	Name               string
	HireDate           generic.TimePoint
	YearsOfService     int
	CurrentEntitlement int
	Total              int
	Used               int
	Remaining          int
	LastUpdate         string
}

// BuildBalanceRows joins employees with their ledger rows. Employees
// without a ledger row fall back to the embedded balance.
func BuildBalanceRows(employees []generic.Employee, records []generic.LedgerRecord, on generic.TimePoint) []BalanceRow {
	byID := make(map[generic.EmployeeID]generic.LedgerRecord, len(records))
	for _, rec := range records {
		byID[rec.EmployeeID] = rec
	}

	rows := make([]BalanceRow, 0, len(employees))
	for _, e := range employees {
		rec, ok := byID[e.ID]
		if !ok {
			rec = generic.NewLedgerRecord(e.ID, e.Balance)
		}
		row := BalanceRow{
			EmployeeID: e.ID,
			Name:       e.Name,
			HireDate:   e.HireDate,
			Total:      rec.Total,
			Used:       rec.Used,
			Remaining:  rec.Remaining,
		}
		if !rec.LastUpdate.IsZero() {
			row.LastUpdate = rec.LastUpdate.UTC().Format("2006-01-02 15:04")
		}
		if e.HasHireDate() {
			row.YearsOfService = vacation.YearsOfService(e.HireDate, on)
			row.CurrentEntitlement = vacation.CurrentEntitlementDays(e.HireDate, on)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteBalances writes rows as a single-sheet workbook to w.
func WriteBalances(w io.Writer, rows []BalanceRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("report: header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "I1", bold); err != nil {
		return fmt.Errorf("report: style: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		hire := ""
		if !r.HireDate.IsZero() {
			hire = r.HireDate.String()
		}
		values := []any{
			string(r.EmployeeID), r.Name, hire, r.YearsOfService, r.CurrentEntitlement,
			r.Total, r.Used, r.Remaining, r.LastUpdate,
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("report: row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "I", 18); err != nil {
		return fmt.Errorf("report: column width: %w", err)
	}
	return f.Write(w)
}
