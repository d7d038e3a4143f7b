package sla

import (
	"context"
	"errors"
	"testing"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var testTenant = uuid.MustParse("6f1c2b9e-3a4d-4e55-9b7a-0c1d2e3f4a5b")

// mockPolicyStore implements PolicyStore for testing.
type mockPolicyStore struct {
	policies map[uuid.UUID]*models.SLAPolicy
	locals   []*models.LocalSLAAssignment
	channels []*models.ChannelSLAAssignment

	err   error
	calls int
}

func newMockPolicyStore() *mockPolicyStore {
	return &mockPolicyStore{policies: make(map[uuid.UUID]*models.SLAPolicy)}
}

func (m *mockPolicyStore) addPolicy(p *models.SLAPolicy) *models.SLAPolicy {
	m.policies[p.ID] = p
	return p
}

func (m *mockPolicyStore) assignLocal(localID uuid.UUID, slaID *uuid.UUID) {
	m.locals = append(m.locals, &models.LocalSLAAssignment{TenantID: testTenant, LocalID: localID, SLAID: slaID})
}

func (m *mockPolicyStore) assignChannel(ch models.ChannelType, slaID *uuid.UUID) {
	m.channels = append(m.channels, &models.ChannelSLAAssignment{TenantID: testTenant, ChannelType: ch, SLAID: slaID})
}

func (m *mockPolicyStore) GetSLAPolicyByID(_ context.Context, id uuid.UUID) (*models.SLAPolicy, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.policies[id], nil
}

func (m *mockPolicyStore) ListActiveSLAPoliciesByTenant(_ context.Context, tenantID uuid.UUID) ([]*models.SLAPolicy, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.SLAPolicy
	for _, p := range m.policies {
		if p.TenantID == tenantID && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPolicyStore) GetLocalSLAAssignment(_ context.Context, tenantID, localID uuid.UUID) (*models.LocalSLAAssignment, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.locals {
		if a.TenantID == tenantID && a.LocalID == localID {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockPolicyStore) GetChannelSLAAssignment(_ context.Context, tenantID uuid.UUID, ch models.ChannelType) (*models.ChannelSLAAssignment, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.channels {
		if a.TenantID == tenantID && a.ChannelType == ch {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockPolicyStore) ListLocalSLAAssignments(_ context.Context, _ uuid.UUID) ([]*models.LocalSLAAssignment, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.locals, nil
}

func (m *mockPolicyStore) ListChannelSLAAssignments(_ context.Context, _ uuid.UUID) ([]*models.ChannelSLAAssignment, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.channels, nil
}

func newTestPolicy(name string, responseMinutes int) *models.SLAPolicy {
	p := models.NewSLAPolicy(testTenant, name, responseMinutes, 24)
	return p
}

func ptr[T any](v T) *T { return &v }

func TestPolicySetResolve_Precedence(t *testing.T) {
	localID := uuid.New()
	store := newMockPolicyStore()
	localPolicy := store.addPolicy(newTestPolicy("local", 15))
	channelPolicy := store.addPolicy(newTestPolicy("channel", 30))
	tenantPolicy := newTestPolicy("tenant", 60)
	tenantPolicy.IsDefault = true
	store.addPolicy(tenantPolicy)

	store.assignLocal(localID, &localPolicy.ID)
	store.assignChannel(models.ChannelWhatsApp, &channelPolicy.ID)

	set := NewPolicySet(testTenant, activeOf(store), store.locals, store.channels)

	eff, err := set.Resolve(&localID, models.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eff.Source != models.SLASourceLocal || *eff.SLAID != localPolicy.ID {
		t.Errorf("expected local %s, got %s %v", localPolicy.ID, eff.Source, eff.SLAID)
	}

	store.locals = nil
	set = NewPolicySet(testTenant, activeOf(store), store.locals, store.channels)
	eff, _ = set.Resolve(&localID, models.ChannelWhatsApp)
	if eff.Source != models.SLASourceChannel || *eff.SLAID != channelPolicy.ID {
		t.Errorf("expected channel %s, got %s %v", channelPolicy.ID, eff.Source, eff.SLAID)
	}

	store.channels = nil
	set = NewPolicySet(testTenant, activeOf(store), store.locals, store.channels)
	eff, _ = set.Resolve(&localID, models.ChannelWhatsApp)
	if eff.Source != models.SLASourceTenant || *eff.SLAID != tenantPolicy.ID {
		t.Errorf("expected tenant %s, got %s %v", tenantPolicy.ID, eff.Source, eff.SLAID)
	}
}

func activeOf(m *mockPolicyStore) []*models.SLAPolicy {
	out, _ := m.ListActiveSLAPoliciesByTenant(context.Background(), testTenant)
	return out
}

func TestPolicySetResolve_FallThrough(t *testing.T) {
	localID := uuid.New()

	t.Run("cleared local falls to channel", func(t *testing.T) {
		store := newMockPolicyStore()
		ch := store.addPolicy(newTestPolicy("channel", 30))
		store.assignLocal(localID, nil)
		store.assignChannel(models.ChannelEmail, &ch.ID)

		set := NewPolicySet(testTenant, activeOf(store), store.locals, store.channels)
		eff, err := set.Resolve(&localID, models.ChannelEmail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eff.Source != models.SLASourceChannel {
			t.Errorf("expected channel, got %s", eff.Source)
		}
	})

	t.Run("inactive local policy falls through", func(t *testing.T) {
		store := newMockPolicyStore()
		inactive := newTestPolicy("retired", 10)
		inactive.IsActive = false
		store.addPolicy(inactive)
		def := newTestPolicy("default", 60)
		def.IsDefault = true
		store.addPolicy(def)
		store.assignLocal(localID, &inactive.ID)

		set := NewPolicySet(testTenant, activeOf(store), store.locals, store.channels)
		eff, _ := set.Resolve(&localID, models.ChannelEmail)
		if eff.Source != models.SLASourceTenant || *eff.SLAID != def.ID {
			t.Errorf("expected tenant default, got %s", eff.Source)
		}
	})

	t.Run("no policies resolves to none", func(t *testing.T) {
		set := NewPolicySet(testTenant, nil, nil, nil)
		eff, err := set.Resolve(&localID, models.ChannelEmail)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eff.Applies() || eff.Source != models.SLASourceNone || eff.SLAID != nil {
			t.Errorf("expected no sla, got %+v", eff)
		}
	})

	t.Run("single unflagged policy is the tenant fallback", func(t *testing.T) {
		p := newTestPolicy("only", 45)
		set := NewPolicySet(testTenant, []*models.SLAPolicy{p}, nil, nil)
		eff, _ := set.Resolve(nil, models.ChannelTelegram)
		if eff.Source != models.SLASourceTenant || *eff.SLAID != p.ID {
			t.Errorf("expected tenant fallback %s, got %+v", p.ID, eff)
		}
	})

	t.Run("several unflagged policies resolve to none", func(t *testing.T) {
		set := NewPolicySet(testTenant, []*models.SLAPolicy{newTestPolicy("a", 10), newTestPolicy("b", 20)}, nil, nil)
		eff, err := set.Resolve(nil, models.ChannelTelegram)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eff.Applies() {
			t.Errorf("expected no sla, got %s", eff.Source)
		}
	})

	t.Run("other tenant rows ignored", func(t *testing.T) {
		foreign := models.NewSLAPolicy(uuid.New(), "foreign", 5, 1)
		foreign.IsDefault = true
		set := NewPolicySet(testTenant, []*models.SLAPolicy{foreign}, nil, nil)
		eff, _ := set.Resolve(nil, models.ChannelTelegram)
		if eff.Applies() {
			t.Errorf("expected foreign policy to be ignored")
		}
	})
}

func TestPolicySetResolve_DefaultConflict(t *testing.T) {
	localID := uuid.New()
	a := newTestPolicy("a", 10)
	a.IsDefault = true
	b := newTestPolicy("b", 20)
	b.IsDefault = true
	locals := []*models.LocalSLAAssignment{{TenantID: testTenant, LocalID: localID, SLAID: &a.ID}}

	set := NewPolicySet(testTenant, []*models.SLAPolicy{a, b}, locals, nil)

	eff, err := set.Resolve(&localID, models.ChannelWebChat)
	if err != nil {
		t.Fatalf("local assignment should win without consulting the default: %v", err)
	}
	if eff.Source != models.SLASourceLocal {
		t.Errorf("expected local, got %s", eff.Source)
	}

	_, err = set.Resolve(nil, models.ChannelWebChat)
	if !errors.Is(err, ErrAssignmentConflict) {
		t.Errorf("expected ErrAssignmentConflict, got %v", err)
	}
}

func TestResolverResolve_MatchesPolicySet(t *testing.T) {
	localA, localB := uuid.New(), uuid.New()
	store := newMockPolicyStore()
	p1 := store.addPolicy(newTestPolicy("p1", 15))
	p2 := store.addPolicy(newTestPolicy("p2", 30))
	def := newTestPolicy("default", 60)
	def.IsDefault = true
	store.addPolicy(def)
	store.assignLocal(localA, &p1.ID)
	store.assignChannel(models.ChannelInstagram, &p2.ID)

	resolver := NewResolver(store, zerolog.Nop())
	ctx := context.Background()

	set, err := resolver.LoadPolicySet(ctx, testTenant)
	if err != nil {
		t.Fatalf("LoadPolicySet: %v", err)
	}

	cases := []struct {
		local   *uuid.UUID
		channel models.ChannelType
	}{
		{&localA, models.ChannelInstagram},
		{&localB, models.ChannelInstagram},
		{&localB, models.ChannelEmail},
		{nil, models.ChannelInstagram},
		{nil, ""},
	}
	for _, c := range cases {
		single, err := resolver.Resolve(ctx, testTenant, c.local, c.channel)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		batch, _ := set.Resolve(c.local, c.channel)
		if single.Source != batch.Source || *single.SLAID != *batch.SLAID {
			t.Errorf("local=%v channel=%q: single %s/%s, batch %s/%s",
				c.local, c.channel, single.Source, single.SLAID, batch.Source, batch.SLAID)
		}
	}
}

func TestResolver_StoreUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	store := newMockPolicyStore()
	store.err = cause
	resolver := NewResolver(store, zerolog.Nop())

	_, err := resolver.Resolve(context.Background(), testTenant, nil, models.ChannelEmail)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}

	_, err = resolver.LoadPolicySet(context.Background(), testTenant)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestResolver_ContextErrorNotStoreUnavailable(t *testing.T) {
	store := newMockPolicyStore()
	store.err = context.DeadlineExceeded
	resolver := NewResolver(store, zerolog.Nop())

	_, err := resolver.LoadPolicySet(context.Background(), testTenant)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("context errors should not be reported as store unavailable")
	}
}

func TestResolverGetPolicy(t *testing.T) {
	store := newMockPolicyStore()
	p := store.addPolicy(newTestPolicy("p", 30))
	foreign := store.addPolicy(models.NewSLAPolicy(uuid.New(), "foreign", 30, 1))
	resolver := NewResolver(store, zerolog.Nop())
	ctx := context.Background()

	got, err := resolver.GetPolicy(ctx, testTenant, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("GetPolicy = %v, %v", got, err)
	}

	if _, err := resolver.GetPolicy(ctx, testTenant, uuid.New()); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
	if _, err := resolver.GetPolicy(ctx, testTenant, foreign.ID); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound for other tenant, got %v", err)
	}
}

func TestEnsureSingleDefault(t *testing.T) {
	existing := newTestPolicy("existing", 60)
	existing.IsDefault = true

	candidate := newTestPolicy("candidate", 30)
	candidate.IsDefault = true

	if err := EnsureSingleDefault([]*models.SLAPolicy{existing}, candidate); !errors.Is(err, ErrAssignmentConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// updating the current default is not a conflict
	if err := EnsureSingleDefault([]*models.SLAPolicy{existing}, existing); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	existing.IsActive = false
	if err := EnsureSingleDefault([]*models.SLAPolicy{existing}, candidate); err != nil {
		t.Errorf("inactive default should not conflict: %v", err)
	}

	candidate.IsDefault = false
	existing.IsActive = true
	if err := EnsureSingleDefault([]*models.SLAPolicy{existing}, candidate); err != nil {
		t.Errorf("non-default candidate should not conflict: %v", err)
	}
}

func TestEffectiveSLAIsSnapshot(t *testing.T) {
	p := newTestPolicy("p", 30)
	set := NewPolicySet(testTenant, []*models.SLAPolicy{p}, nil, nil)
	eff, _ := set.Resolve(nil, models.ChannelEmail)

	p.ResponseTimeMinutes = 5
	if eff.Policy.ResponseTimeMinutes != 30 {
		t.Errorf("effective sla should not observe later policy edits")
	}
}
