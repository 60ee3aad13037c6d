package vacation

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/vacation-engine/generic"
)

// Employees manages the employee subset the engine owns. Deletion is left
// to the identity system.
type Employees struct {
	store generic.Store
	opts  Options
}

func NewEmployees(store generic.Store, opts Options) *Employees {
	return &Employees{store: store, opts: opts.withDefaults()}
}

// Create onboards an employee with a {0, 0} balance. hire may be zero.
func (e *Employees) Create(ctx context.Context, id generic.EmployeeID, name, email string, hire generic.TimePoint) (*generic.Employee, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("employee id is required: %w", generic.ErrInvalidInput)
	}
	emp := generic.Employee{
		ID:        id,
		Name:      name,
		Email:     email,
		HireDate:  hire,
		CreatedAt: e.opts.Clock.Now(),
	}
	if !hire.IsZero() {
		emp.HireDate = generic.DateOf(hire.Time)
	}
	emp.Balance.LastUpdate = emp.CreatedAt
	if err := e.store.CreateEmployee(ctx, emp); err != nil {
		return nil, err
	}
	return &emp, nil
}

func (e *Employees) Get(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	return e.store.GetEmployee(ctx, id)
}

func (e *Employees) List(ctx context.Context) ([]generic.Employee, error) {
	return e.store.ListEmployees(ctx)
}

// SetHireDate replaces the hire date; zero clears it.
func (e *Employees) SetHireDate(ctx context.Context, id generic.EmployeeID, hire generic.TimePoint) (*generic.Employee, error) {
	if !hire.IsZero() {
		hire = generic.DateOf(hire.Time)
	}
	if err := e.store.SetHireDate(ctx, id, hire); err != nil {
		return nil, err
	}
	return e.store.GetEmployee(ctx, id)
}
