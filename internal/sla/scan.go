package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
)

// ScanOptions tunes a scan.
type ScanOptions struct {
	// AllowPartial returns the results gathered so far, flagged Partial,
	// together with the context error when a scan is cancelled.
	AllowPartial bool
}

// ScanOption configures ScanOptions.
type ScanOption func(*ScanOptions)

// WithPartialResults makes a cancelled scan return what it has gathered.
func WithPartialResults() ScanOption {
	return func(o *ScanOptions) {
		o.AllowPartial = true
	}
}

func applyScanOptions(opts []ScanOption) ScanOptions {
	var o ScanOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ValidateFilter checks that every bound pair of the filter is ordered.
func ValidateFilter(f models.ThreadFilter) error {
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		return fmt.Errorf("%w: created_from is after created_to", ErrInvalidFilter)
	}
	if f.ExpiredFrom != nil && f.ExpiredTo != nil && f.ExpiredFrom.After(*f.ExpiredTo) {
		return fmt.Errorf("%w: expired_from is after expired_to", ErrInvalidFilter)
	}
	return nil
}

// evaluation is one candidate thread after resolution and classification.
type evaluation struct {
	thread *models.Thread
	state  models.ThreadSLAState
	err    error
}

// evaluateThreads resolves and classifies each candidate the store returned.
// Closed, answered, other-tenant and non-matching threads are skipped. The
// context is checked before every thread.
func evaluateThreads(ctx context.Context, set *PolicySet, threads []*models.Thread, filter models.ThreadFilter, now time.Time, visit func(evaluation)) error {
	for _, t := range threads {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t == nil || t.TenantID != set.TenantID || !t.IsOpen() || !t.AwaitingResponse() || !filter.Matches(t) {
			continue
		}

		eff, err := set.Resolve(t.LocalID, t.ChannelType)
		if err != nil {
			visit(evaluation{
				thread: t,
				state: models.ThreadSLAState{
					ThreadID:    t.ID,
					AppliedSLA:  eff,
					ReferenceAt: t.ReferenceTime(),
					Status:      models.SLAHealthMisconfigured,
					Error:       err.Error(),
				},
				err: err,
			})
			continue
		}

		state, err := evaluate(eff, t, now)
		visit(evaluation{thread: t, state: state, err: err})
	}
	return nil
}

func withinExpiredRange(f models.ThreadFilter, deadline time.Time) bool {
	if f.ExpiredFrom != nil && deadline.Before(*f.ExpiredFrom) {
		return false
	}
	if f.ExpiredTo != nil && deadline.After(*f.ExpiredTo) {
		return false
	}
	return true
}
