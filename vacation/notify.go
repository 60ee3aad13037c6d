package vacation

import (
	"context"
	"log"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// NOTIFICATIONS - Fire-and-forget boundary to the email dispatcher
// =============================================================================

type NotificationEvent string

const (
	EventRequestCreated  NotificationEvent = "request_created"
	EventRequestApproved NotificationEvent = "request_approved"
	EventRequestRejected NotificationEvent = "request_rejected"
)

// Notification is the payload handed to the dispatcher.
type Notification struct {
	Event         NotificationEvent  `json:"event"`
	EmployeeID    generic.EmployeeID `json:"employee_id"`
	RequestID     generic.RequestID  `json:"request_id"`
	StartDate     generic.TimePoint  `json:"start_date"`
	EndDate       generic.TimePoint  `json:"end_date"`
	DaysRequested int                `json:"days_requested"`
	RecipientRole generic.Role       `json:"recipient_role"`
}

// Notifier delivers notifications. Implementations live outside the engine.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Printf("[Notify] %s -> %s: request %s of %s (%s..%s, %d days)",
		n.Event, n.RecipientRole, n.RequestID, n.EmployeeID, n.StartDate, n.EndDate, n.DaysRequested)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

const notifyTimeout = 30 * time.Second

// dispatch sends n in the background. Failures and panics are logged and
// never reach the caller.
func dispatch(notifier Notifier, n Notification) {
	if notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Notify] panic delivering %s for %s: %v", n.Event, n.RequestID, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notifier.Notify(ctx, n); err != nil {
			log.Printf("[Notify] failed to deliver %s for %s: %v", n.Event, n.RequestID, err)
		}
	}()
}

func notificationFor(event NotificationEvent, r generic.Request, recipient generic.Role) Notification {
	return Notification{
		Event:         event,
		EmployeeID:    r.EmployeeID,
		RequestID:     r.ID,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		DaysRequested: r.DaysRequested,
		RecipientRole: recipient,
	}
}
