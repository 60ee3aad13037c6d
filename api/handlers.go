/*
handlers.go - HTTP API handlers for the vacation engine

PURPOSE:
  Exposes the vacation engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the vacation package.

ENDPOINTS:
  Employees:
    GET    /api/employees                          List employees (admin)
    POST   /api/employees                          Create employee (admin)
    GET    /api/employees/{id}                     Get employee (self/admin)
    PUT    /api/employees/{id}/hire-date           Set hire date (admin)

  Balances:
    GET    /api/employees/{id}/balance             Balance + entitlement summary
    POST   /api/employees/{id}/balance/grant       Add days (admin)
    POST   /api/employees/{id}/balance/consume     Remove days (admin)
    PUT    /api/employees/{id}/balance/total       Set total (admin)
    POST   /api/employees/{id}/balance/reset       Zero the balance (admin)
    POST   /api/employees/{id}/balance/recompute   Rebuild used (admin)

  Requests:
    GET    /api/employees/{id}/requests            Approved + pending (?all=1 for every status)
    POST   /api/employees/{id}/requests            Create pending request
    GET    /api/requests/pending                   Pending queue (admin)
    POST   /api/requests/{id}/approve              Approve (admin)
    POST   /api/requests/{id}/reject               Reject (admin)
    POST   /api/requests/{id}/cancel               Cancel (owner/admin)

  Calendar:
    GET    /api/holidays                           Holidays in ?from..?to
    POST   /api/holidays                           Add holiday (admin)
    DELETE /api/holidays/{date}                    Remove holiday (admin)
    POST   /api/holidays/defaults                  Seed statutory holidays for ?year (admin)
    GET    /api/business-days                      Working days in ?from..?to

  Admin:
    POST   /api/admin/recompute                    Recompute every employee
    POST   /api/admin/grants/anniversary           Apply anniversary grants
    GET    /api/admin/reconciliation/runs          Batch history
    GET    /api/admin/audit                        Audit log (?employee, ?limit)
    GET    /api/admin/balances/export              XLSX export of the ledger

ERROR HANDLING:
  Errors are returned as {"error", "code"} where code is the engine's
  error kind. See errors.go for the status mapping.

SEE ALSO:
  - dto.go: Request body types
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/report"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *vacation.Engine
	Store  generic.Store
	Clock  generic.Clock

	validate *validator.Validate
}

func NewHandler(engine *vacation.Engine, store generic.Store, clock generic.Clock) *Handler {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Handler{
		Engine:   engine,
		Store:    store,
		Clock:    clock,
		validate: validator.New(),
	}
}

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %v", generic.ErrInvalidInput, err)
	}
	return h.validate.Struct(dst)
}

func (h *Handler) today() generic.TimePoint {
	return generic.TodayFrom(h.Clock)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Engine.Employees.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if employees == nil {
		employees = []generic.Employee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var hire generic.TimePoint
	if req.HireDate != "" {
		var err error
		if hire, err = generic.ParseDate(req.HireDate); err != nil {
			writeError(w, fmt.Errorf("%w: hire_date: %v", generic.ErrInvalidInput, err))
			return
		}
	}

	emp, err := h.Engine.Employees.Create(r.Context(), generic.EmployeeID(req.ID), req.Name, req.Email, hire)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	if !requireSelfOrAdmin(w, r, id) {
		return
	}
	emp, err := h.Engine.Employees.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (h *Handler) SetHireDate(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	var req SetHireDateRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	hire, err := generic.ParseDate(req.HireDate)
	if err != nil {
		writeError(w, fmt.Errorf("%w: hire_date: %v", generic.ErrInvalidInput, err))
		return
	}
	emp, err := h.Engine.Employees.SetHireDate(r.Context(), id, hire)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	if !requireSelfOrAdmin(w, r, id) {
		return
	}
	summary, err := h.Engine.Balances.Summary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GrantDays(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, h.Engine.Balances.Grant)
}

func (h *Handler) ConsumeDays(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, h.Engine.Balances.Consume)
}

func (h *Handler) applyAmount(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, generic.Actor, generic.EmployeeID, decimal.Decimal) (generic.BalanceView, error),
) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	var req AmountRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := op(r.Context(), actorFrom(r.Context()), id, req.Days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) SetTotal(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	var req SetTotalRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Engine.Balances.SetTotal(r.Context(), actorFrom(r.Context()), id, *req.Total)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ResetBalance(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	view, err := h.Engine.Balances.Reset(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) RecomputeBalance(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	view, err := h.Engine.Reconciler.Recompute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// ListEmployeeRequests returns approved and pending requests grouped, or
// every request when ?all=1.
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	if !requireSelfOrAdmin(w, r, id) {
		return
	}

	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		requests, err := h.Engine.Ledger.ListAllForEmployee(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RequestListResponse{Requests: nonNil(requests)})
		return
	}

	grouped, err := h.Engine.Ledger.ListForEmployee(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	if !requireSelfOrAdmin(w, r, id) {
		return
	}

	var req CreateRequestRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, fmt.Errorf("%w: start_date: %v", generic.ErrInvalidInput, err))
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, fmt.Errorf("%w: end_date: %v", generic.ErrInvalidInput, err))
		return
	}

	created, err := h.Engine.Lifecycle.Create(r.Context(), vacation.CreateInput{
		EmployeeID:   id,
		StartDate:    start,
		EndDate:      end,
		Reason:       req.Reason,
		ActorID:      actorFrom(r.Context()).ID,
		DaysOverride: req.DaysOverride,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Engine.Ledger.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestListResponse{Requests: nonNil(requests)})
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))
	updated, err := h.Engine.Lifecycle.Approve(r.Context(), id, actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))
	var req RejectRequestRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	updated, err := h.Engine.Lifecycle.Reject(r.Context(), id, actorFrom(r.Context()).ID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))
	updated, err := h.Engine.Lifecycle.Cancel(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// ListHolidays returns holidays in ?from..?to, defaulting to this year.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.rangeParams(r, true)
	if err != nil {
		writeError(w, err)
		return
	}
	holidays, err := h.Store.HolidaysBetween(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	if holidays == nil {
		holidays = []generic.Holiday{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": holidays})
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, fmt.Errorf("%w: date: %v", generic.ErrInvalidInput, err))
		return
	}
	holiday := generic.Holiday{Date: date, Name: req.Name}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, holiday)
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	date, err := generic.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: date: %v", generic.ErrInvalidInput, err))
		return
	}
	if err := h.Store.DeleteHoliday(r.Context(), date); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// AddDefaultHolidays seeds the statutory holidays of ?year (default: this year).
func (h *Handler) AddDefaultHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.today().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1970 || parsed > 9999 {
			writeError(w, fmt.Errorf("%w: year %q", generic.ErrInvalidInput, raw))
			return
		}
		year = parsed
	}

	holidays := generic.MexicanStatutoryHolidays(year)
	err := h.Store.WithTx(r.Context(), func(tx generic.Store) error {
		for _, hol := range holidays {
			if err := tx.SaveHoliday(r.Context(), hol); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"year": year, "holidays": holidays})
}

// BusinessDays counts working days in ?from..?to using the holiday table.
func (h *Handler) BusinessDays(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.rangeParams(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := generic.BusinessDays(r.Context(), h.Store, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BusinessDaysResponse{From: from, To: to, BusinessDays: n})
}

// rangeParams reads ?from and ?to. With defaults, missing values span the
// current calendar year.
func (h *Handler) rangeParams(r *http.Request, defaults bool) (generic.TimePoint, generic.TimePoint, error) {
	q := r.URL.Query()
	year := h.today().Year()
	from := generic.NewTimePoint(year, 1, 1)
	to := generic.NewTimePoint(year, 12, 31)

	if raw := q.Get("from"); raw != "" || !defaults {
		parsed, err := generic.ParseDate(raw)
		if err != nil {
			return from, to, fmt.Errorf("%w: from: %v", generic.ErrInvalidInput, err)
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" || !defaults {
		parsed, err := generic.ParseDate(raw)
		if err != nil {
			return from, to, fmt.Errorf("%w: to: %v", generic.ErrInvalidInput, err)
		}
		to = parsed
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("%w: %s is after %s", generic.ErrInvalidDateRange, from, to)
	}
	if p := (generic.Period{Start: from, End: to}); !p.WithinMaxSpan() {
		return from, to, fmt.Errorf("%w: %s exceeds %d days", generic.ErrInvalidDateRange, p, generic.MaxPeriodDays)
	}
	return from, to, nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

func (h *Handler) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Engine.Reconciler.RecomputeAll(r.Context(), "manual")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) GrantAnniversaries(w http.ResponseWriter, r *http.Request) {
	results, err := h.Engine.Granter.GrantAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []vacation.GrantResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := h.Engine.Reconciler.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []generic.ReconciliationRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 100)
	if err != nil {
		writeError(w, err)
		return
	}
	employee := generic.EmployeeID(r.URL.Query().Get("employee"))
	entries, err := h.Store.QueryAudit(r.Context(), employee, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []generic.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ExportBalances streams the balance ledger as an XLSX workbook.
func (h *Handler) ExportBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employees, err := h.Store.ListEmployees(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.Store.ListLedgerRecords(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	today := h.today()
	var buf bytes.Buffer
	if err := report.WriteBalances(&buf, report.BuildBalanceRows(employees, records, today)); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="balances-%s.xlsx"`, today))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// =============================================================================
// HELPERS
// =============================================================================

func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit %q", generic.ErrInvalidInput, raw)
	}
	return n, nil
}

func nonNil(requests []generic.Request) []generic.Request {
	if requests == nil {
		return []generic.Request{}
	}
	return requests
}
