package sla

import (
	"context"
	"fmt"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PolicySet is an in-memory snapshot of a tenant's active policies and
// assignments. Resolving against a PolicySet issues no queries.
type PolicySet struct {
	TenantID uuid.UUID

	policies      map[uuid.UUID]*models.SLAPolicy
	locals        map[uuid.UUID]*uuid.UUID
	channels      map[models.ChannelType]*uuid.UUID
	tenantDefault *models.SLAPolicy
	defaultErr    error
}

// NewPolicySet builds a snapshot from raw store rows. Inactive policies and
// rows belonging to other tenants are ignored.
func NewPolicySet(tenantID uuid.UUID, active []*models.SLAPolicy, locals []*models.LocalSLAAssignment, channels []*models.ChannelSLAAssignment) *PolicySet {
	set := &PolicySet{
		TenantID: tenantID,
		policies: make(map[uuid.UUID]*models.SLAPolicy, len(active)),
		locals:   make(map[uuid.UUID]*uuid.UUID, len(locals)),
		channels: make(map[models.ChannelType]*uuid.UUID, len(channels)),
	}

	var usable []*models.SLAPolicy
	for _, p := range active {
		if p == nil || !p.IsActive || p.TenantID != tenantID {
			continue
		}
		set.policies[p.ID] = p
		usable = append(usable, p)
	}
	for _, a := range locals {
		if a != nil && a.TenantID == tenantID {
			set.locals[a.LocalID] = a.SLAID
		}
	}
	for _, a := range channels {
		if a != nil && a.TenantID == tenantID {
			set.channels[a.ChannelType] = a.SLAID
		}
	}

	set.tenantDefault, set.defaultErr = selectTenantDefault(usable)
	return set
}

// selectTenantDefault picks the tenant-level fallback. A single flagged
// default wins. Without a flag, a tenant with exactly one active policy uses
// it. More than one flagged default is a conflict.
func selectTenantDefault(active []*models.SLAPolicy) (*models.SLAPolicy, error) {
	var def *models.SLAPolicy
	for _, p := range active {
		if !p.IsDefault {
			continue
		}
		if def != nil {
			return nil, fmt.Errorf("%w: %s and %s", ErrAssignmentConflict, def.ID, p.ID)
		}
		def = p
	}
	if def != nil {
		return def, nil
	}
	if len(active) == 1 {
		return active[0], nil
	}
	return nil, nil
}

// Policy returns the active policy with the given ID.
func (s *PolicySet) Policy(id uuid.UUID) (*models.SLAPolicy, bool) {
	p, ok := s.policies[id]
	return p, ok
}

// ActivePolicies returns the number of active policies in the snapshot.
func (s *PolicySet) ActivePolicies() int {
	return len(s.policies)
}

// TenantDefault returns the tenant-level fallback policy, if any.
func (s *PolicySet) TenantDefault() (*models.SLAPolicy, error) {
	return s.tenantDefault, s.defaultErr
}

// LocalConfigured reports whether the local has an assignment to an active policy.
func (s *PolicySet) LocalConfigured(localID uuid.UUID) bool {
	_, ok := s.assigned(s.locals[localID])
	return ok
}

// ChannelConfigured reports whether the channel has an assignment to an active policy.
func (s *PolicySet) ChannelConfigured(channelType models.ChannelType) bool {
	_, ok := s.assigned(s.channels[channelType])
	return ok
}

func (s *PolicySet) assigned(id *uuid.UUID) (*models.SLAPolicy, bool) {
	if id == nil {
		return nil, false
	}
	p, ok := s.policies[*id]
	return p, ok
}

// Resolve returns the effective SLA for a thread at the given local and
// channel. Precedence is local, then channel, then tenant. An assignment that
// is cleared or points at an inactive policy falls through to the next level.
func (s *PolicySet) Resolve(localID *uuid.UUID, channelType models.ChannelType) (*models.EffectiveSLA, error) {
	if localID != nil {
		if p, ok := s.assigned(s.locals[*localID]); ok {
			return effective(p, models.SLASourceLocal), nil
		}
	}
	if channelType != "" {
		if p, ok := s.assigned(s.channels[channelType]); ok {
			return effective(p, models.SLASourceChannel), nil
		}
	}
	if s.defaultErr != nil {
		return models.NoSLA(), s.defaultErr
	}
	if s.tenantDefault != nil {
		return effective(s.tenantDefault, models.SLASourceTenant), nil
	}
	return models.NoSLA(), nil
}

func effective(p *models.SLAPolicy, source models.SLASource) *models.EffectiveSLA {
	id := p.ID
	return &models.EffectiveSLA{SLAID: &id, Source: source, Policy: p.Clone()}
}

// EnsureSingleDefault returns ErrAssignmentConflict if saving candidate as an
// active default would leave the tenant with two active defaults.
func EnsureSingleDefault(existing []*models.SLAPolicy, candidate *models.SLAPolicy) error {
	if candidate == nil || !candidate.IsDefault || !candidate.IsActive {
		return nil
	}
	for _, p := range existing {
		if p == nil || p.ID == candidate.ID || p.TenantID != candidate.TenantID {
			continue
		}
		if p.IsActive && p.IsDefault {
			return fmt.Errorf("%w: %q is already the default", ErrAssignmentConflict, p.Name)
		}
	}
	return nil
}

// Resolver resolves effective SLAs against a PolicyStore.
type Resolver struct {
	store  PolicyStore
	logger zerolog.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(store PolicyStore, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With().Str("component", "sla_resolver").Logger(),
	}
}

// LoadPolicySet reads everything needed to resolve any thread of the tenant
// in a fixed number of queries.
func (r *Resolver) LoadPolicySet(ctx context.Context, tenantID uuid.UUID) (*PolicySet, error) {
	active, err := r.store.ListActiveSLAPoliciesByTenant(ctx, tenantID)
	if err != nil {
		return nil, storeError("list active sla policies", err)
	}
	locals, err := r.store.ListLocalSLAAssignments(ctx, tenantID)
	if err != nil {
		return nil, storeError("list local sla assignments", err)
	}
	channels, err := r.store.ListChannelSLAAssignments(ctx, tenantID)
	if err != nil {
		return nil, storeError("list channel sla assignments", err)
	}

	set := NewPolicySet(tenantID, active, locals, channels)
	r.logSnapshot(set)
	return set, nil
}

// Resolve returns the effective SLA for a single thread location using point
// lookups. The result equals LoadPolicySet followed by PolicySet.Resolve.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, localID *uuid.UUID, channelType models.ChannelType) (*models.EffectiveSLA, error) {
	active, err := r.store.ListActiveSLAPoliciesByTenant(ctx, tenantID)
	if err != nil {
		return nil, storeError("list active sla policies", err)
	}

	var locals []*models.LocalSLAAssignment
	if localID != nil {
		a, err := r.store.GetLocalSLAAssignment(ctx, tenantID, *localID)
		if err != nil {
			return nil, storeError("get local sla assignment", err)
		}
		if a != nil {
			locals = append(locals, a)
		}
	}

	var channels []*models.ChannelSLAAssignment
	if channelType != "" {
		a, err := r.store.GetChannelSLAAssignment(ctx, tenantID, channelType)
		if err != nil {
			return nil, storeError("get channel sla assignment", err)
		}
		if a != nil {
			channels = append(channels, a)
		}
	}

	set := NewPolicySet(tenantID, active, locals, channels)
	r.logSnapshot(set)
	return set.Resolve(localID, channelType)
}

// GetPolicy returns a tenant's policy by ID, active or not.
func (r *Resolver) GetPolicy(ctx context.Context, tenantID, policyID uuid.UUID) (*models.SLAPolicy, error) {
	p, err := r.store.GetSLAPolicyByID(ctx, policyID)
	if err != nil {
		return nil, storeError("get sla policy", err)
	}
	if p == nil || p.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}
	return p, nil
}

func (r *Resolver) logSnapshot(set *PolicySet) {
	if set.defaultErr != nil {
		r.logger.Warn().
			Err(set.defaultErr).
			Str("tenant_id", set.TenantID.String()).
			Msg("tenant default sla is ambiguous")
		return
	}
	if set.tenantDefault == nil && set.ActivePolicies() > 1 {
		r.logger.Warn().
			Str("tenant_id", set.TenantID.String()).
			Int("active_policies", set.ActivePolicies()).
			Msg("no default sla flagged among several active policies")
	}
}
