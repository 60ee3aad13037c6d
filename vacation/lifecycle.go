/*
lifecycle.go - Vacation request state machine

STATES:
  pending ──approve──► approved ──cancel──► cancelled
     │
     ├──reject──► rejected
     └──cancel──► cancelled

  rejected and cancelled are final. approved is final for review actions
  but may still be cancelled, which frees its days.

TRANSITION RULES:
  All transitions are checked against one table (transitions). Each
  transition is one transaction: status write guarded by version, then
  reconciliation when approved days change. A failed transition leaves the
  request untouched. Notifications go out after commit and never affect
  the outcome.

SEE ALSO:
  - reconciler.go: recomputeIn
  - notify.go: dispatch
*/
package vacation

import (
	"context"
	"fmt"
	"log"

	"github.com/warp/vacation-engine/generic"
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

// transitions is the only place allowed status changes are declared.
var transitions = map[generic.RequestStatus]map[Action]generic.RequestStatus{
	generic.RequestPending: {
		ActionApprove: generic.RequestApproved,
		ActionReject:  generic.RequestRejected,
		ActionCancel:  generic.RequestCancelled,
	},
	generic.RequestApproved: {
		ActionCancel: generic.RequestCancelled,
	},
}

// NextStatus returns the status reached by applying action to from.
func NextStatus(from generic.RequestStatus, action Action) (generic.RequestStatus, bool) {
	next, ok := transitions[from][action]
	return next, ok
}

// Lifecycle is the RequestLifecycle.
type Lifecycle struct {
	store  generic.Store
	ledger *Ledger
	opts   Options
}

func NewLifecycle(store generic.Store, ledger *Ledger, opts Options) *Lifecycle {
	return &Lifecycle{store: store, ledger: ledger, opts: opts.withDefaults()}
}

// Create delegates to the ledger.
func (lc *Lifecycle) Create(ctx context.Context, in CreateInput) (*generic.Request, error) {
	return lc.ledger.Create(ctx, in)
}

// Approve moves a pending request to approved and reconciles the balance.
func (lc *Lifecycle) Approve(ctx context.Context, id generic.RequestID, reviewer generic.EmployeeID) (*generic.Request, error) {
	req, err := lc.transition(ctx, id, ActionApprove, generic.Actor{ID: reviewer, Role: generic.RoleAdmin}, nil)
	if err != nil {
		return nil, err
	}
	dispatch(lc.opts.Notifier, notificationFor(EventRequestApproved, *req, generic.RoleEmployee))
	return req, nil
}

// Reject moves a pending request to rejected. A non-empty reason replaces
// the request's reason text.
func (lc *Lifecycle) Reject(ctx context.Context, id generic.RequestID, reviewer generic.EmployeeID, reason string) (*generic.Request, error) {
	req, err := lc.transition(ctx, id, ActionReject, generic.Actor{ID: reviewer, Role: generic.RoleAdmin}, &reason)
	if err != nil {
		return nil, err
	}
	dispatch(lc.opts.Notifier, notificationFor(EventRequestRejected, *req, generic.RoleEmployee))
	return req, nil
}

// Cancel moves a pending or approved request to cancelled. Only the owner
// or an admin may cancel.
func (lc *Lifecycle) Cancel(ctx context.Context, id generic.RequestID, by generic.Actor) (*generic.Request, error) {
	return lc.transition(ctx, id, ActionCancel, by, nil)
}

func (lc *Lifecycle) transition(ctx context.Context, id generic.RequestID, action Action, actor generic.Actor, reason *string) (*generic.Request, error) {
	var result generic.Request
	err := retry(ctx, lc.opts.MaxRetries, "Lifecycle", func() error {
		return lc.store.WithTx(ctx, func(tx generic.Store) error {
			req, err := tx.GetRequest(ctx, id)
			if err != nil {
				return err
			}
			if action == ActionCancel && !actor.IsAdmin() && actor.ID != req.EmployeeID {
				return fmt.Errorf("%w: %s may not cancel request %s", generic.ErrForbidden, actor.ID, id)
			}
			from := req.Status
			next, ok := NextStatus(from, action)
			if !ok {
				return &generic.TransitionError{RequestID: id, From: from, Action: string(action)}
			}
			if next == generic.RequestApproved {
				if err := checkOverlap(ctx, tx, *req); err != nil {
					return err
				}
			}

			now := lc.opts.Clock.Now()
			req.Status = next
			req.UpdatedAt = now
			if action != ActionCancel {
				reviewer := actor.ID
				req.ProcessedBy = &reviewer
				req.ProcessedAt = &now
			}
			if reason != nil && *reason != "" {
				req.Reason = *reason
			}
			if err := tx.UpdateRequestStatus(ctx, *req, from); err != nil {
				return err
			}

			if next == generic.RequestApproved || from == generic.RequestApproved {
				if _, err := recomputeIn(ctx, tx, lc.opts.Clock, req.EmployeeID); err != nil {
					return fmt.Errorf("reconcile %s: %w", req.EmployeeID, err)
				}
			}

			if err := appendAudit(ctx, tx, lc.opts.Clock, generic.AuditEntry{
				ActorID:    actor.ID,
				Action:     auditActionFor(action),
				EmployeeID: req.EmployeeID,
				RequestID:  req.ID,
				Payload:    map[string]any{"from": string(from), "to": string(next)},
			}); err != nil {
				return err
			}

			req.Version++
			result = *req
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Lifecycle] %s %s by %s -> %s", action, id, actor.ID, result.Status)
	return &result, nil
}

func auditActionFor(a Action) generic.AuditAction {
	switch a {
	case ActionApprove:
		return generic.AuditRequestApproved
	case ActionReject:
		return generic.AuditRequestRejected
	default:
		return generic.AuditRequestCancelled
	}
}
