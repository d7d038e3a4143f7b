package sla

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/slawatch/internal/businesshours"
)

// Sentinel errors returned by the SLA engine.
var (
	// ErrPolicyNotFound is returned for an explicit policy lookup that matches nothing.
	ErrPolicyNotFound = errors.New("sla policy not found")

	// ErrThreadNotFound is returned for a single-thread query on an unknown thread.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrAssignmentConflict is returned when a tenant has more than one active default policy.
	ErrAssignmentConflict = errors.New("tenant has more than one active default sla policy")

	// ErrUnschedulableBusinessHours is returned when a non-24/7 schedule has no open window.
	ErrUnschedulableBusinessHours = businesshours.ErrUnschedulable

	// ErrStoreUnavailable wraps every failed data-store call.
	ErrStoreUnavailable = errors.New("sla store unavailable")

	// ErrInvalidFilter is returned for malformed query parameters.
	ErrInvalidFilter = errors.New("invalid sla filter")
)

// storeError wraps a store failure so callers can match both ErrStoreUnavailable
// and the underlying cause. Context errors pass through unchanged.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsConfigurationError reports whether err means the SLA configuration itself
// is invalid, as opposed to a missing SLA or an infrastructure failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnschedulableBusinessHours) ||
		errors.Is(err, businesshours.ErrInvalidSchedule) ||
		errors.Is(err, ErrAssignmentConflict)
}
