package services

import (
	"fmt"
	"time"
)

// AuthError means the company's CRM credentials were rejected (HTTP 403).
// Fatal for the tenant: the cycle fails and sync stays halted until the
// config row is updated.
type AuthError struct {
	Endpoint string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("CRM rejected credentials on %s (403)", e.Endpoint)
}

// RateLimitError is returned when a 429 persists through the client's
// bounded backoff attempts. Transient.
type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("CRM rate limit exhausted on %s (retry after %s)", e.Endpoint, e.RetryAfter)
}

// NetworkError wraps transport failures and unexpected CRM responses.
// Transient: the sync worker retries the page a bounded number of times
// before degrading the cycle to PARTIAL.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("CRM request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MappingError marks a single CRM record that could not be normalized.
// The record is logged and skipped; the cycle continues.
type MappingError struct {
	Entity string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("cannot map %s record: %s", e.Entity, e.Reason)
}

// SchemaEvolutionError means adding or dropping a rule column failed. The
// rule change is not considered applied.
type SchemaEvolutionError struct {
	Column string
	Err    error
}

func (e *SchemaEvolutionError) Error() string {
	return fmt.Sprintf("schema change for column %q failed: %v", e.Column, e.Err)
}

func (e *SchemaEvolutionError) Unwrap() error {
	return e.Err
}
