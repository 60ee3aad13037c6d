/*
reconciler.go - Recompute used days from approved requests

ALGORITHM:
  approvedUsed = sum of EffectiveDays over approved requests
  used         = min(approvedUsed, total)     (cap clamp, not an error)
  remaining    = max(0, total - used)
  Write both the embedded balance and the ledger record.

  Recompute is idempotent and is the repair path when the two balance
  copies diverge. RecomputeAll runs employees in parallel, keeps going past
  failures and persists a run record.
*/
package vacation

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/vacation-engine/generic"
)

// Reconciler is the BalanceReconciler.
type Reconciler struct {
	store generic.Store
	opts  Options
}

func NewReconciler(store generic.Store, opts Options) *Reconciler {
	return &Reconciler{store: store, opts: opts.withDefaults()}
}

// Recompute reconciles one employee in its own transaction.
func (r *Reconciler) Recompute(ctx context.Context, id generic.EmployeeID) (generic.BalanceView, error) {
	var result generic.Balance
	err := retry(ctx, r.opts.MaxRetries, "Reconciler", func() error {
		return r.store.WithTx(ctx, func(tx generic.Store) error {
			var err error
			result, err = recomputeIn(ctx, tx, r.opts.Clock, id)
			return err
		})
	})
	if err != nil {
		return generic.BalanceView{}, err
	}
	return result.View(), nil
}

// recomputeIn reconciles id inside an open transaction. Lifecycle calls it
// so the status change and the balance land together.
func recomputeIn(ctx context.Context, tx generic.Store, clock generic.Clock, id generic.EmployeeID) (generic.Balance, error) {
	approved, err := tx.ListRequestsByEmployee(ctx, id, generic.RequestApproved)
	if err != nil {
		return generic.Balance{}, err
	}
	approvedUsed := 0
	for _, req := range approved {
		approvedUsed += req.EffectiveDays()
	}
	return applyBalance(ctx, tx, clock, id, func(cur generic.Balance) (generic.Balance, error) {
		cur.Used = min(approvedUsed, cur.Total)
		if approvedUsed > cur.Total {
			log.Printf("[Reconciler] %s: approved %d days exceed total %d, used capped", id, approvedUsed, cur.Total)
		}
		return cur, nil
	})
}

// =============================================================================
// BATCH
// =============================================================================

// EmployeeResult is one line of a batch report.
type EmployeeResult struct {
	EmployeeID generic.EmployeeID   `json:"employee_id"`
	Balance    *generic.BalanceView `json:"balance,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// BatchReport summarises RecomputeAll.
type BatchReport struct {
	Run     generic.ReconciliationRun `json:"run"`
	Results []EmployeeResult          `json:"results"`
}

// RecomputeAll reconciles every employee. One failure never stops the batch.
func (r *Reconciler) RecomputeAll(ctx context.Context, trigger string) (*BatchReport, error) {
	run := generic.ReconciliationRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: r.opts.Clock.Now(),
	}

	employees, err := r.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]EmployeeResult, len(employees))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, emp := range employees {
		g.Go(func() error {
			res := EmployeeResult{EmployeeID: emp.ID}
			view, err := r.Recompute(gctx, emp.ID)
			if err != nil {
				log.Printf("[Reconciler] Error recomputing %s: %v", emp.ID, err)
				res.Error = err.Error()
			} else {
				res.Balance = &view
			}
			mu.Lock()
			results[i] = res
			if err != nil {
				run.Failed++
			} else {
				run.Processed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	run.CompletedAt = r.opts.Clock.Now()
	if err := r.store.SaveReconciliationRun(ctx, run); err != nil {
		log.Printf("[Reconciler] Failed to save run %s: %v", run.ID, err)
	}
	log.Printf("[Reconciler] Run %s (%s): %d processed, %d failed", run.ID, trigger, run.Processed, run.Failed)
	return &BatchReport{Run: run, Results: results}, nil
}

// Runs returns recent reconciliation runs, newest first.
func (r *Reconciler) Runs(ctx context.Context, limit int) ([]generic.ReconciliationRun, error) {
	return r.store.ListReconciliationRuns(ctx, limit)
}
