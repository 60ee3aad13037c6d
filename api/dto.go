/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON bodies the API accepts. Responses reuse the domain
  types, which already carry JSON tags.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers around domain types

VALIDATION:
  Struct tags are checked with go-playground/validator before the body
  reaches the engine. Domain rules (past dates, overlaps, balance floor)
  stay in the vacation package and come back as typed errors.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: Maps validation and domain errors to responses
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type CreateEmployeeRequest struct {
	ID       string `json:"id" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	HireDate string `json:"hire_date" validate:"omitempty,datetime=2006-01-02"`
}

type SetHireDateRequest struct {
	HireDate string `json:"hire_date" validate:"required,datetime=2006-01-02"`
}

// =============================================================================
// BALANCES
// =============================================================================

// AmountRequest carries a day amount for grant and consume. Fractions are
// accepted and floored by the engine.
type AmountRequest struct {
	Days decimal.Decimal `json:"days"`
}

type SetTotalRequest struct {
	Total *int `json:"total" validate:"required"`
}

// =============================================================================
// REQUESTS
// =============================================================================

type CreateRequestRequest struct {
	StartDate    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate      string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason       string `json:"reason" validate:"max=500"`
	DaysOverride *int   `json:"days_override" validate:"omitempty,min=0"`
}

type RejectRequestRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type RequestListResponse struct {
	Requests []generic.Request `json:"requests"`
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type CreateHolidayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Name string `json:"name" validate:"required,max=200"`
}

type BusinessDaysResponse struct {
	From         generic.TimePoint `json:"from"`
	To           generic.TimePoint `json:"to"`
	BusinessDays int               `json:"business_days"`
}
