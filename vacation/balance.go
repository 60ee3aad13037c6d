/*
balance.go - Dual-representation vacation balance

PURPOSE:
  Mutates the embedded balance on the employee record and mirrors every
  write into the balance_ledger record before returning.

WRITE PATH (every mutation):
  1. Read employee (with balance version)
  2. Build the candidate balance
  3. Validate the whole candidate (used <= total, non-negative)
  4. UpdateBalance guarded by version, then UpsertLedgerRecord
  5. Append audit entry
  All inside one transaction; ConcurrencyConflict is retried.

AMOUNTS:
  Grant and Consume take decimal day counts. Non-positive amounts fail
  with InvalidAmount; fractional days are floored.
*/
package vacation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
)

// Balances is the BalanceStore service.
type Balances struct {
	store generic.Store
	opts  Options
}

func NewBalances(store generic.Store, opts Options) *Balances {
	return &Balances{store: store, opts: opts.withDefaults()}
}

// Read returns the balance with remaining derived at read time.
func (b *Balances) Read(ctx context.Context, id generic.EmployeeID) (generic.BalanceView, error) {
	emp, err := b.store.GetEmployee(ctx, id)
	if err != nil {
		return generic.BalanceView{}, err
	}
	return emp.Balance.View(), nil
}

// Summary returns the balance with tenure figures as of today.
func (b *Balances) Summary(ctx context.Context, id generic.EmployeeID) (Summary, error) {
	emp, err := b.store.GetEmployee(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(*emp, generic.TodayFrom(b.opts.Clock)), nil
}

// Ledger returns the denormalized mirror record.
func (b *Balances) Ledger(ctx context.Context, id generic.EmployeeID) (*generic.LedgerRecord, error) {
	return b.store.GetLedgerRecord(ctx, id)
}

// Grant adds floor(days) to total.
func (b *Balances) Grant(ctx context.Context, actor generic.Actor, id generic.EmployeeID, days decimal.Decimal) (generic.BalanceView, error) {
	whole, err := wholeDays(days)
	if err != nil {
		return generic.BalanceView{}, err
	}
	return b.mutate(ctx, actor, id, generic.AuditBalanceGrant, map[string]any{"days": days.String()},
		func(cur generic.Balance) (generic.Balance, error) {
			cur.Total += whole
			return cur, nil
		})
}

// Consume adds floor(days) to used. Fails when remaining < days.
func (b *Balances) Consume(ctx context.Context, actor generic.Actor, id generic.EmployeeID, days decimal.Decimal) (generic.BalanceView, error) {
	whole, err := wholeDays(days)
	if err != nil {
		return generic.BalanceView{}, err
	}
	return b.mutate(ctx, actor, id, generic.AuditBalanceConsume, map[string]any{"days": days.String()},
		func(cur generic.Balance) (generic.Balance, error) {
			if decimal.NewFromInt(int64(cur.Remaining())).LessThan(days) {
				return cur, &generic.InsufficientBalanceError{
					EmployeeID: id,
					Available:  cur.Remaining(),
					Requested:  days.String(),
				}
			}
			cur.Used += whole
			return cur, nil
		})
}

// SetTotal replaces total. Fails with BelowUsedFloor when newTotal < used.
func (b *Balances) SetTotal(ctx context.Context, actor generic.Actor, id generic.EmployeeID, newTotal int) (generic.BalanceView, error) {
	if newTotal < 0 {
		return generic.BalanceView{}, fmt.Errorf("%w: total %d is negative", generic.ErrInvalidAmount, newTotal)
	}
	return b.mutate(ctx, actor, id, generic.AuditBalanceSetTotal, map[string]any{"total": newTotal},
		func(cur generic.Balance) (generic.Balance, error) {
			cur.Total = newTotal
			return cur, nil
		})
}

// Reset zeroes total and used.
func (b *Balances) Reset(ctx context.Context, actor generic.Actor, id generic.EmployeeID) (generic.BalanceView, error) {
	return b.mutate(ctx, actor, id, generic.AuditBalanceReset, nil,
		func(cur generic.Balance) (generic.Balance, error) {
			cur.Total, cur.Used = 0, 0
			return cur, nil
		})
}

func (b *Balances) mutate(
	ctx context.Context,
	actor generic.Actor,
	id generic.EmployeeID,
	action generic.AuditAction,
	payload map[string]any,
	apply func(generic.Balance) (generic.Balance, error),
) (generic.BalanceView, error) {
	var result generic.Balance
	err := retry(ctx, b.opts.MaxRetries, "Balances", func() error {
		return b.store.WithTx(ctx, func(tx generic.Store) error {
			var err error
			result, err = applyBalance(ctx, tx, b.opts.Clock, id, apply)
			if err != nil {
				return err
			}
			return appendAudit(ctx, tx, b.opts.Clock, generic.AuditEntry{
				ActorID:    actor.ID,
				Action:     action,
				EmployeeID: id,
				Payload:    withBalance(payload, result),
			})
		})
	})
	if err != nil {
		return generic.BalanceView{}, err
	}
	return result.View(), nil
}

// applyBalance runs the validated dual write inside an open transaction.
func applyBalance(
	ctx context.Context,
	tx generic.Store,
	clock generic.Clock,
	id generic.EmployeeID,
	apply func(generic.Balance) (generic.Balance, error),
) (generic.Balance, error) {
	emp, err := tx.GetEmployee(ctx, id)
	if err != nil {
		return generic.Balance{}, err
	}
	next, err := apply(emp.Balance)
	if err != nil {
		return generic.Balance{}, err
	}
	if err := next.Validate(); err != nil {
		return generic.Balance{}, err
	}
	next.LastUpdate = clock.Now()
	if err := writeBalance(ctx, tx, id, next); err != nil {
		return generic.Balance{}, err
	}
	return next, nil
}

// writeBalance updates the embedded balance then the ledger mirror.
func writeBalance(ctx context.Context, tx generic.Store, id generic.EmployeeID, b generic.Balance) error {
	if err := tx.UpdateBalance(ctx, id, b); err != nil {
		return fmt.Errorf("update balance of %s: %w", id, err)
	}
	if err := tx.UpsertLedgerRecord(ctx, generic.NewLedgerRecord(id, b)); err != nil {
		return fmt.Errorf("upsert ledger record of %s: %w", id, err)
	}
	return nil
}

func wholeDays(days decimal.Decimal) (int, error) {
	if !days.IsPositive() {
		return 0, fmt.Errorf("%w: days must be positive, got %s", generic.ErrInvalidAmount, days)
	}
	return int(days.Floor().IntPart()), nil
}

func withBalance(payload map[string]any, b generic.Balance) map[string]any {
	out := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		out[k] = v
	}
	out["total"] = b.Total
	out["used"] = b.Used
	return out
}
