package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAllProvidersFailed indicates every content provider in a chain failed.
	ErrAllProvidersFailed = errors.New("all content providers failed")
	// ErrUnrecognizedRequest indicates no modification rule matched a change request.
	ErrUnrecognizedRequest = errors.New("could not understand this request")
	// ErrAllStrategiesFailed indicates every deployment strategy failed.
	ErrAllStrategiesFailed = errors.New("all deployment strategies failed")
)

// ValidationError lists every invalid submission field with a user-facing message.
type ValidationError struct {
	FieldErrors map[string]string `json:"fieldErrors"`
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// ProviderError reports a failed content provider call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("content provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StrategyError reports a failed deployment strategy.
type StrategyError struct {
	Strategy  string
	Subdomain string
	Err       error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("deployment strategy %s (%s): %v", e.Strategy, e.Subdomain, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// ConflictError reports that a subdomain is already taken.
type ConflictError struct {
	Subdomain string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("subdomain %q is already taken", e.Subdomain)
}

// PersistenceError reports a status store write that could not be completed.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
