// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.Store in process memory. All writes are
// serialised by one mutex, which also closes the approval overlap race.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	employees map[generic.EmployeeID]generic.Employee
	ledger    map[generic.EmployeeID]generic.LedgerRecord
	requests  map[generic.RequestID]generic.Request
	holidays  map[string]generic.Holiday
	audit     []generic.AuditEntry
	runs      []generic.ReconciliationRun
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		employees: make(map[generic.EmployeeID]generic.Employee),
		ledger:    make(map[generic.EmployeeID]generic.LedgerRecord),
		requests:  make(map[generic.RequestID]generic.Request),
		holidays:  make(map[string]generic.Holiday),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txMemoryView{memState: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.holidays {
		c.holidays[k] = v
	}
	c.audit = append([]generic.AuditEntry{}, s.audit...)
	c.runs = append([]generic.ReconciliationRun{}, s.runs...)
	return c
}

// txMemoryView runs with the parent's lock held. Nested WithTx calls join
// the outer transaction.
type txMemoryView struct {
	*memState
}

func (tv *txMemoryView) WithTx(_ context.Context, fn func(generic.Store) error) error {
	return fn(tv)
}

// =============================================================================
// LOCKED DELEGATES
// =============================================================================

func (m *Memory) CreateEmployee(ctx context.Context, e generic.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateEmployee(ctx, e)
}

func (m *Memory) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetEmployee(ctx, id)
}

func (m *Memory) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListEmployees(ctx)
}

func (m *Memory) SetHireDate(ctx context.Context, id generic.EmployeeID, hireDate generic.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetHireDate(ctx, id, hireDate)
}

func (m *Memory) UpdateBalance(ctx context.Context, id generic.EmployeeID, b generic.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateBalance(ctx, id, b)
}

func (m *Memory) SetGrantedServiceYears(ctx context.Context, id generic.EmployeeID, years int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetGrantedServiceYears(ctx, id, years)
}

func (m *Memory) UpsertLedgerRecord(ctx context.Context, rec generic.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpsertLedgerRecord(ctx, rec)
}

func (m *Memory) GetLedgerRecord(ctx context.Context, id generic.EmployeeID) (*generic.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetLedgerRecord(ctx, id)
}

func (m *Memory) ListLedgerRecords(ctx context.Context) ([]generic.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListLedgerRecords(ctx)
}

func (m *Memory) InsertRequest(ctx context.Context, r generic.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertRequest(ctx, r)
}

func (m *Memory) GetRequest(ctx context.Context, id generic.RequestID) (*generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetRequest(ctx, id)
}

func (m *Memory) ListRequestsByEmployee(ctx context.Context, id generic.EmployeeID, statuses ...generic.RequestStatus) ([]generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListRequestsByEmployee(ctx, id, statuses...)
}

func (m *Memory) ListRequestsByStatus(ctx context.Context, status generic.RequestStatus) ([]generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListRequestsByStatus(ctx, status)
}

func (m *Memory) FindApprovedOverlapping(ctx context.Context, id generic.EmployeeID, p generic.Period, excluding generic.RequestID) ([]generic.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FindApprovedOverlapping(ctx, id, p, excluding)
}

func (m *Memory) UpdateRequestStatus(ctx context.Context, r generic.Request, from generic.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateRequestStatus(ctx, r, from)
}

func (m *Memory) HolidaysBetween(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.HolidaysBetween(ctx, from, to)
}

func (m *Memory) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveHoliday(ctx, h)
}

func (m *Memory) DeleteHoliday(ctx context.Context, date generic.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteHoliday(ctx, date)
}

func (m *Memory) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendAudit(ctx, entry)
}

func (m *Memory) QueryAudit(ctx context.Context, employee generic.EmployeeID, limit int) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.QueryAudit(ctx, employee, limit)
}

func (m *Memory) SaveReconciliationRun(ctx context.Context, run generic.ReconciliationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveReconciliationRun(ctx, run)
}

func (m *Memory) ListReconciliationRuns(ctx context.Context, limit int) ([]generic.ReconciliationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListReconciliationRuns(ctx, limit)
}

// =============================================================================
// STATE - Unlocked operations, callers hold the mutex
// =============================================================================

func (s *memState) CreateEmployee(_ context.Context, e generic.Employee) error {
	if _, ok := s.employees[e.ID]; ok {
		return fmt.Errorf("employee %s: %w", e.ID, generic.ErrAlreadyExists)
	}
	s.employees[e.ID] = e
	return nil
}

func (s *memState) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	return &e, nil
}

func (s *memState) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	result := make([]generic.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *memState) SetHireDate(_ context.Context, id generic.EmployeeID, hireDate generic.TimePoint) error {
	e, ok := s.employees[id]
	if !ok {
		return fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	e.HireDate = hireDate
	s.employees[id] = e
	return nil
}

func (s *memState) UpdateBalance(_ context.Context, id generic.EmployeeID, b generic.Balance) error {
	e, ok := s.employees[id]
	if !ok {
		return fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	if e.Balance.Version != b.Version {
		return fmt.Errorf("balance of %s at version %d, have %d: %w",
			id, e.Balance.Version, b.Version, generic.ErrConcurrencyConflict)
	}
	b.Version++
	e.Balance = b
	s.employees[id] = e
	return nil
}

func (s *memState) SetGrantedServiceYears(_ context.Context, id generic.EmployeeID, years int) error {
	e, ok := s.employees[id]
	if !ok {
		return fmt.Errorf("employee %s: %w", id, generic.ErrNotFound)
	}
	e.GrantedServiceYears = years
	s.employees[id] = e
	return nil
}

func (s *memState) UpsertLedgerRecord(_ context.Context, rec generic.LedgerRecord) error {
	s.ledger[rec.EmployeeID] = rec
	return nil
}

func (s *memState) GetLedgerRecord(_ context.Context, id generic.EmployeeID) (*generic.LedgerRecord, error) {
	rec, ok := s.ledger[id]
	if !ok {
		return nil, fmt.Errorf("ledger record %s: %w", id, generic.ErrNotFound)
	}
	return &rec, nil
}

func (s *memState) ListLedgerRecords(_ context.Context) ([]generic.LedgerRecord, error) {
	result := make([]generic.LedgerRecord, 0, len(s.ledger))
	for _, rec := range s.ledger {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EmployeeID < result[j].EmployeeID })
	return result, nil
}

func (s *memState) InsertRequest(_ context.Context, r generic.Request) error {
	if _, ok := s.requests[r.ID]; ok {
		return fmt.Errorf("request %s: %w", r.ID, generic.ErrAlreadyExists)
	}
	if _, ok := s.employees[r.EmployeeID]; !ok {
		return fmt.Errorf("employee %s: %w", r.EmployeeID, generic.ErrNotFound)
	}
	s.requests[r.ID] = r
	return nil
}

func (s *memState) GetRequest(_ context.Context, id generic.RequestID) (*generic.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, generic.ErrNotFound)
	}
	return &r, nil
}

func (s *memState) ListRequestsByEmployee(_ context.Context, id generic.EmployeeID, statuses ...generic.RequestStatus) ([]generic.Request, error) {
	var result []generic.Request
	for _, r := range s.requests {
		if r.EmployeeID == id && statusIn(r.Status, statuses) {
			result = append(result, r)
		}
	}
	sortRequests(result)
	return result, nil
}

func (s *memState) ListRequestsByStatus(_ context.Context, status generic.RequestStatus) ([]generic.Request, error) {
	var result []generic.Request
	for _, r := range s.requests {
		if r.Status == status {
			result = append(result, r)
		}
	}
	sortRequests(result)
	return result, nil
}

func (s *memState) FindApprovedOverlapping(_ context.Context, id generic.EmployeeID, p generic.Period, excluding generic.RequestID) ([]generic.Request, error) {
	return s.approvedOverlapping(id, p, excluding), nil
}

func (s *memState) approvedOverlapping(id generic.EmployeeID, p generic.Period, excluding generic.RequestID) []generic.Request {
	var result []generic.Request
	for _, r := range s.requests {
		if r.EmployeeID != id || r.Status != generic.RequestApproved || r.ID == excluding {
			continue
		}
		if r.Period().Overlaps(p) {
			result = append(result, r)
		}
	}
	sortRequests(result)
	return result
}

func (s *memState) UpdateRequestStatus(_ context.Context, r generic.Request, from generic.RequestStatus) error {
	stored, ok := s.requests[r.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", r.ID, generic.ErrNotFound)
	}
	if stored.Version != r.Version || stored.Status != from {
		return fmt.Errorf("request %s changed underneath: %w", r.ID, generic.ErrConcurrencyConflict)
	}
	if r.Status == generic.RequestApproved {
		if clash := s.approvedOverlapping(stored.EmployeeID, stored.Period(), stored.ID); len(clash) > 0 {
			ids := make([]generic.RequestID, len(clash))
			for i, c := range clash {
				ids[i] = c.ID
			}
			return &generic.OverlapError{EmployeeID: stored.EmployeeID, Period: stored.Period(), Conflicting: ids}
		}
	}
	stored.Status = r.Status
	stored.Reason = r.Reason
	stored.ProcessedBy = r.ProcessedBy
	stored.ProcessedAt = r.ProcessedAt
	stored.UpdatedAt = r.UpdatedAt
	stored.Version++
	s.requests[r.ID] = stored
	return nil
}

func (s *memState) HolidaysBetween(_ context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	var result []generic.Holiday
	for _, h := range s.holidays {
		if h.Date.AfterOrEqual(from) && h.Date.BeforeOrEqual(to) {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *memState) SaveHoliday(_ context.Context, h generic.Holiday) error {
	s.holidays[h.Date.String()] = h
	return nil
}

func (s *memState) DeleteHoliday(_ context.Context, date generic.TimePoint) error {
	if _, ok := s.holidays[date.String()]; !ok {
		return fmt.Errorf("holiday %s: %w", date, generic.ErrNotFound)
	}
	delete(s.holidays, date.String())
	return nil
}

func (s *memState) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	s.audit = append(s.audit, entry)
	return nil
}

func (s *memState) QueryAudit(_ context.Context, employee generic.EmployeeID, limit int) ([]generic.AuditEntry, error) {
	var result []generic.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		if employee != "" && s.audit[i].EmployeeID != employee {
			continue
		}
		result = append(result, s.audit[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *memState) SaveReconciliationRun(_ context.Context, run generic.ReconciliationRun) error {
	s.runs = append(s.runs, run)
	return nil
}

func (s *memState) ListReconciliationRuns(_ context.Context, limit int) ([]generic.ReconciliationRun, error) {
	var result []generic.ReconciliationRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		result = append(result, s.runs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func statusIn(st generic.RequestStatus, statuses []generic.RequestStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func sortRequests(rs []generic.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].StartDate.Equal(rs[j].StartDate) {
			return rs[i].StartDate.Before(rs[j].StartDate)
		}
		return rs[i].ID < rs[j].ID
	})
}

var (
	_ generic.Store = (*Memory)(nil)
	_ generic.Store = (*txMemoryView)(nil)
)
