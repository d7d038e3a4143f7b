package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stores groups the data-store collaborators of the engine.
type Stores struct {
	Policies PolicyStore
	Threads  ThreadStore
	Coverage CoverageStore
}

// Engine wires the resolver, detectors and aggregator over one set of stores.
type Engine struct {
	Resolver *Resolver
	Warnings *WarningDetector
	Expired  *ExpiredDetector
	Stats    *StatsAggregator

	threads ThreadStore
	clock   Clock
	logger  zerolog.Logger
}

// NewEngine creates a new Engine. A nil clock uses the system clock.
func NewEngine(stores Stores, clock Clock, logger zerolog.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	resolver := NewResolver(stores.Policies, logger)
	warnings := NewWarningDetector(resolver, stores.Threads, clock, logger)
	expired := NewExpiredDetector(resolver, stores.Threads, clock, logger)
	return &Engine{
		Resolver: resolver,
		Warnings: warnings,
		Expired:  expired,
		Stats:    NewStatsAggregator(resolver, warnings, expired, stores.Coverage, clock, logger),
		threads:  stores.Threads,
		clock:    clock,
		logger:   logger.With().Str("component", "sla_engine").Logger(),
	}
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// ThreadState evaluates the full SLA state of one thread, including answered
// and closed threads. Misconfiguration is reported in the state, not as an error.
func (e *Engine) ThreadState(ctx context.Context, tenantID, threadID uuid.UUID) (*models.ThreadSLAState, error) {
	thread, err := e.threads.GetThread(ctx, tenantID, threadID)
	if err != nil {
		return nil, storeError("get thread", err)
	}
	if thread == nil || thread.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}

	eff, err := e.Resolver.Resolve(ctx, tenantID, thread.LocalID, thread.ChannelType)
	if err != nil {
		if !IsConfigurationError(err) {
			return nil, err
		}
		return &models.ThreadSLAState{
			ThreadID:    thread.ID,
			AppliedSLA:  models.NoSLA(),
			ReferenceAt: thread.ReferenceTime(),
			Status:      models.SLAHealthMisconfigured,
			Error:       err.Error(),
		}, nil
	}

	state, err := evaluate(eff, thread, e.clock.Now())
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("tenant_id", tenantID.String()).
			Str("thread_id", threadID.String()).
			Msg("thread sla misconfigured")
	}
	return &state, nil
}
