package models

import (
	"fmt"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// InsufficientStockError carries the shortfall so callers can render it.
type InsufficientStockError struct {
	Name      string
	Category  ComponentCategory
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): available %d, requested %d",
		e.Name, e.Category, e.Available, e.Requested)
}

type RecordNotFoundError struct {
	Name     string
	Category ComponentCategory
	Location Location
}

func (e *RecordNotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("no %s records at %s", e.Category, e.Location)
	}
	return fmt.Sprintf("no %s (%s) records at %s", e.Name, e.Category, e.Location)
}

// ConcurrencyConflictError reports a lost race on Resource; retrying the operation may succeed.
type ConcurrencyConflictError struct {
	Resource string
	Err      error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Err == nil {
		return "concurrency conflict on " + e.Resource
	}
	return fmt.Sprintf("concurrency conflict on %s: %v", e.Resource, e.Err)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Err
}

type LedgerInvariantViolationError struct {
	Reference string
	Reason    string
}

func (e *LedgerInvariantViolationError) Error() string {
	return fmt.Sprintf("ledger invariant violated for %s: %s", e.Reference, e.Reason)
}
