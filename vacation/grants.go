package vacation

import (
	"context"
	"fmt"
	"log"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// ANNIVERSARY GRANTS
// =============================================================================

// Granter adds the entitlement of each newly completed service year to an
// employee's total. When several years are outstanding only the latest is
// granted; the windows of the earlier years have already lapsed.
type Granter struct {
	store generic.Store
	opts  Options
}

func NewGranter(store generic.Store, opts Options) *Granter {
	return &Granter{store: store, opts: opts.withDefaults()}
}

// GrantResult reports one employee's grant.
type GrantResult struct {
	EmployeeID   generic.EmployeeID `json:"employee_id"`
	ServiceYears int                `json:"service_years"`
	DaysGranted  int                `json:"days_granted"`
	Error        string             `json:"error,omitempty"`
}

// GrantFor grants the entitlement due to one employee as of today. It is a
// no-op when nothing new is due.
func (g *Granter) GrantFor(ctx context.Context, id generic.EmployeeID) (GrantResult, error) {
	result := GrantResult{EmployeeID: id}
	today := generic.TodayFrom(g.opts.Clock)
	err := retry(ctx, g.opts.MaxRetries, "Granter", func() error {
		return g.store.WithTx(ctx, func(tx generic.Store) error {
			emp, err := tx.GetEmployee(ctx, id)
			if err != nil {
				return err
			}
			years := YearsOfService(emp.HireDate, today)
			result.ServiceYears = years
			result.DaysGranted = 0
			if years <= emp.GrantedServiceYears {
				return nil
			}
			days := EntitlementDaysForYear(years)
			if _, err := applyBalance(ctx, tx, g.opts.Clock, id, func(cur generic.Balance) (generic.Balance, error) {
				cur.Total += days
				return cur, nil
			}); err != nil {
				return err
			}
			if err := tx.SetGrantedServiceYears(ctx, id, years); err != nil {
				return fmt.Errorf("record granted years: %w", err)
			}
			result.DaysGranted = days
			return appendAudit(ctx, tx, g.opts.Clock, generic.AuditEntry{
				ActorID:    generic.SystemActor.ID,
				Action:     generic.AuditAnniversaryGrant,
				EmployeeID: id,
				Payload:    map[string]any{"service_years": years, "days": days},
			})
		})
	})
	if err != nil {
		return GrantResult{EmployeeID: id, Error: err.Error()}, err
	}
	return result, nil
}

// GrantAll runs GrantFor over every employee, continuing past failures.
// Only employees that were granted days or failed are reported.
func (g *Granter) GrantAll(ctx context.Context) ([]GrantResult, error) {
	employees, err := g.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	results := []GrantResult{}
	for _, emp := range employees {
		if !emp.HasHireDate() {
			continue
		}
		res, err := g.GrantFor(ctx, emp.ID)
		if err != nil {
			log.Printf("[Granter] Error granting %s: %v", emp.ID, err)
		}
		if err != nil || res.DaysGranted > 0 {
			results = append(results, res)
		}
	}
	log.Printf("[Granter] Completed: %d employees updated", len(results))
	return results, nil
}
