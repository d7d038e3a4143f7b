package sla

import (
	"context"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
)

// PolicyStore defines the policy and assignment reads the engine needs.
// Single-row getters return (nil, nil) when no row exists.
type PolicyStore interface {
	GetSLAPolicyByID(ctx context.Context, id uuid.UUID) (*models.SLAPolicy, error)
	ListActiveSLAPoliciesByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.SLAPolicy, error)
	GetLocalSLAAssignment(ctx context.Context, tenantID, localID uuid.UUID) (*models.LocalSLAAssignment, error)
	GetChannelSLAAssignment(ctx context.Context, tenantID uuid.UUID, channelType models.ChannelType) (*models.ChannelSLAAssignment, error)

	// Batch reads so a scan issues a constant number of queries.
	ListLocalSLAAssignments(ctx context.Context, tenantID uuid.UUID) ([]*models.LocalSLAAssignment, error)
	ListChannelSLAAssignments(ctx context.Context, tenantID uuid.UUID) ([]*models.ChannelSLAAssignment, error)
}

// ThreadStore defines the thread reads the engine needs. List methods may
// return extra candidates; the engine re-verifies every thread. GetThread
// returns (nil, nil) for an unknown thread.
type ThreadStore interface {
	ListOpenThreadsLackingResponse(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter) ([]*models.Thread, error)
	ListOpenThreadsPastDeadline(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter) ([]*models.Thread, error)
	GetThread(ctx context.Context, tenantID, threadID uuid.UUID) (*models.Thread, error)
}

// CoverageStore lists the dimensions SLA assignments can be made on.
type CoverageStore interface {
	ListLocalIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	ListChannelTypes(ctx context.Context, tenantID uuid.UUID) ([]models.ChannelType, error)
}

// Clock supplies the current time. Scans read it once per invocation.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}
