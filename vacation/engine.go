package vacation

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// ENGINE - Wires the components over one store
// =============================================================================

// Options tunes the engine. Zero values pick the defaults.
type Options struct {
	Clock generic.Clock

	// Calendar supplies holidays for business-day counts. Defaults to the
	// store's own holiday table.
	Calendar generic.HolidayCalendar

	// MaxRetries bounds retries of an operation after ConcurrencyConflict.
	// Zero means DefaultMaxRetries; config rejects it before it gets here.
	MaxRetries int

	// EnforceWindow rejects new requests outside the current anniversary window.
	EnforceWindow bool
	// EnforceBalance rejects new requests larger than the remaining balance.
	EnforceBalance bool

	// Workers bounds RecomputeAll parallelism.
	Workers int

	Notifier Notifier
}

const (
	DefaultMaxRetries = 3
	DefaultWorkers    = 4
)

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = generic.SystemClock{}
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Notifier == nil {
		o.Notifier = LogNotifier{}
	}
	return o
}

// Engine groups the vacation components sharing a store and options.
type Engine struct {
	Employees  *Employees
	Ledger     *Ledger
	Balances   *Balances
	Reconciler *Reconciler
	Lifecycle  *Lifecycle
	Granter    *Granter
}

func NewEngine(store generic.Store, opts Options) *Engine {
	opts = opts.withDefaults()
	ledger := NewLedger(store, opts)
	balances := NewBalances(store, opts)
	return &Engine{
		Employees:  NewEmployees(store, opts),
		Ledger:     ledger,
		Balances:   balances,
		Reconciler: NewReconciler(store, opts),
		Lifecycle:  NewLifecycle(store, ledger, opts),
		Granter:    NewGranter(store, opts),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// retry runs fn up to 1+maxRetries times while it fails with a retryable error.
func retry(ctx context.Context, maxRetries int, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(); err == nil || !generic.IsRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Printf("[%s] concurrency conflict (attempt %d/%d): %v", op, attempt+1, maxRetries+1, err)
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, err)
}

func appendAudit(ctx context.Context, s generic.AuditLog, clock generic.Clock, e generic.AuditEntry) error {
	e.ID = uuid.NewString()
	e.At = clock.Now()
	if err := s.AppendAudit(ctx, e); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
