package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/businesshours"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ sla.PolicyStore   = (*DB)(nil)
	_ sla.ThreadStore   = (*DB)(nil)
	_ sla.CoverageStore = (*DB)(nil)
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const slaPolicyColumns = `
	id, tenant_id, name, description, response_time_minutes, resolution_time_hours,
	priority, is_active, is_default, business_hours, escalation_rules, created_at, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSLAPolicy(row rowScanner) (*models.SLAPolicy, error) {
	var p models.SLAPolicy
	var priority string
	var businessHours, escalation []byte
	if err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Description, &p.ResponseTimeMinutes, &p.ResolutionTimeHours,
		&priority, &p.IsActive, &p.IsDefault, &businessHours, &escalation, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Priority = models.SLAPriority(priority)
	if err := p.SetBusinessHours(businessHours); err != nil {
		return nil, fmt.Errorf("decode business hours of policy %s: %w", p.ID, err)
	}
	if err := p.SetEscalationRules(escalation); err != nil {
		return nil, fmt.Errorf("decode escalation rules of policy %s: %w", p.ID, err)
	}
	return &p, nil
}

func (db *DB) querySLAPolicies(ctx context.Context, op, query string, args ...any) ([]*models.SLAPolicy, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var policies []*models.SLAPolicy
	for rows.Next() {
		p, err := scanSLAPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sla policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return policies, nil
}

// GetSLAPolicyByID returns a policy by ID, or nil if it does not exist.
func (db *DB) GetSLAPolicyByID(ctx context.Context, id uuid.UUID) (*models.SLAPolicy, error) {
	p, err := scanSLAPolicy(db.Pool.QueryRow(ctx, `SELECT `+slaPolicyColumns+` FROM sla_policies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sla policy: %w", err)
	}
	return p, nil
}

// ListActiveSLAPoliciesByTenant returns the tenant's active policies.
func (db *DB) ListActiveSLAPoliciesByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.SLAPolicy, error) {
	return db.querySLAPolicies(ctx, "list active sla policies", `
		SELECT `+slaPolicyColumns+`
		FROM sla_policies
		WHERE tenant_id = $1 AND is_active
		ORDER BY name ASC
	`, tenantID)
}

// ListSLAPoliciesByTenant returns all of the tenant's policies, active or not.
func (db *DB) ListSLAPoliciesByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.SLAPolicy, error) {
	return db.querySLAPolicies(ctx, "list sla policies", `
		SELECT `+slaPolicyColumns+`
		FROM sla_policies
		WHERE tenant_id = $1
		ORDER BY name ASC
	`, tenantID)
}

// CreateSLAPolicy validates and inserts a policy. Saving a second active
// default for a tenant fails with sla.ErrAssignmentConflict.
func (db *DB) CreateSLAPolicy(ctx context.Context, policy *models.SLAPolicy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if err := ensureSingleDefaultTx(ctx, tx, policy); err != nil {
			return err
		}
		bh, esc, err := policyJSON(policy)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO sla_policies (id, tenant_id, name, description, response_time_minutes, resolution_time_hours,
				priority, is_active, is_default, business_hours, escalation_rules, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, policy.ID, policy.TenantID, policy.Name, policy.Description, policy.ResponseTimeMinutes, policy.ResolutionTimeHours,
			string(policy.Priority), policy.IsActive, policy.IsDefault, bh, esc, policy.CreatedAt, policy.UpdatedAt)
		if err != nil {
			return wrapWriteError("create sla policy", err)
		}
		return nil
	})
}

// UpdateSLAPolicy validates and updates a policy with the same default rule
// as CreateSLAPolicy.
func (db *DB) UpdateSLAPolicy(ctx context.Context, policy *models.SLAPolicy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	policy.UpdatedAt = time.Now()
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if err := ensureSingleDefaultTx(ctx, tx, policy); err != nil {
			return err
		}
		bh, esc, err := policyJSON(policy)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE sla_policies
			SET name = $3, description = $4, response_time_minutes = $5, resolution_time_hours = $6,
				priority = $7, is_active = $8, is_default = $9, business_hours = $10, escalation_rules = $11,
				updated_at = $12
			WHERE id = $1 AND tenant_id = $2
		`, policy.ID, policy.TenantID, policy.Name, policy.Description, policy.ResponseTimeMinutes, policy.ResolutionTimeHours,
			string(policy.Priority), policy.IsActive, policy.IsDefault, bh, esc, policy.UpdatedAt)
		if err != nil {
			return wrapWriteError("update sla policy", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update sla policy %s: %w", policy.ID, sla.ErrPolicyNotFound)
		}
		return nil
	})
}

// DeleteSLAPolicy removes a policy. Assignments pointing at it become unset.
func (db *DB) DeleteSLAPolicy(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sla_policies WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete sla policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete sla policy %s: %w", id, sla.ErrPolicyNotFound)
	}
	return nil
}

func validatePolicy(p *models.SLAPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid sla policy: %w", err)
	}
	if p.BusinessHours != nil {
		if err := businesshours.Validate(p.BusinessHours); err != nil {
			return fmt.Errorf("invalid sla policy: %w", err)
		}
	}
	return nil
}

func policyJSON(p *models.SLAPolicy) ([]byte, []byte, error) {
	bh, err := p.BusinessHoursJSON()
	if err != nil {
		return nil, nil, fmt.Errorf("encode business hours: %w", err)
	}
	esc, err := p.EscalationRulesJSON()
	if err != nil {
		return nil, nil, fmt.Errorf("encode escalation rules: %w", err)
	}
	return bh, esc, nil
}

// ensureSingleDefaultTx locks the tenant's defaults and rejects a second one.
func ensureSingleDefaultTx(ctx context.Context, tx pgx.Tx, candidate *models.SLAPolicy) error {
	if !candidate.IsDefault || !candidate.IsActive {
		return nil
	}
	rows, err := tx.Query(ctx, `
		SELECT `+slaPolicyColumns+`
		FROM sla_policies
		WHERE tenant_id = $1 AND is_active AND is_default
		FOR UPDATE
	`, candidate.TenantID)
	if err != nil {
		return fmt.Errorf("lock default sla policies: %w", err)
	}
	defer rows.Close()

	var existing []*models.SLAPolicy
	for rows.Next() {
		p, err := scanSLAPolicy(rows)
		if err != nil {
			return fmt.Errorf("scan sla policy: %w", err)
		}
		existing = append(existing, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock default sla policies: %w", err)
	}
	return sla.EnsureSingleDefault(existing, candidate)
}

// wrapWriteError maps the single-default index violation to sla.ErrAssignmentConflict.
func wrapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, sla.ErrAssignmentConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GetLocalSLAAssignment returns the assignment for a local, or nil if none exists.
func (db *DB) GetLocalSLAAssignment(ctx context.Context, tenantID, localID uuid.UUID) (*models.LocalSLAAssignment, error) {
	var a models.LocalSLAAssignment
	err := db.Pool.QueryRow(ctx, `
		SELECT tenant_id, local_id, sla_id, updated_at
		FROM local_sla_assignments
		WHERE tenant_id = $1 AND local_id = $2
	`, tenantID, localID).Scan(&a.TenantID, &a.LocalID, &a.SLAID, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get local sla assignment: %w", err)
	}
	return &a, nil
}

// GetChannelSLAAssignment returns the assignment for a channel, or nil if none exists.
func (db *DB) GetChannelSLAAssignment(ctx context.Context, tenantID uuid.UUID, channelType models.ChannelType) (*models.ChannelSLAAssignment, error) {
	var a models.ChannelSLAAssignment
	var ch string
	err := db.Pool.QueryRow(ctx, `
		SELECT tenant_id, channel_type, sla_id, updated_at
		FROM channel_sla_assignments
		WHERE tenant_id = $1 AND channel_type = $2
	`, tenantID, string(channelType)).Scan(&a.TenantID, &ch, &a.SLAID, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel sla assignment: %w", err)
	}
	a.ChannelType = models.ChannelType(ch)
	return &a, nil
}

// ListLocalSLAAssignments returns every local assignment of the tenant.
func (db *DB) ListLocalSLAAssignments(ctx context.Context, tenantID uuid.UUID) ([]*models.LocalSLAAssignment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT tenant_id, local_id, sla_id, updated_at
		FROM local_sla_assignments
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list local sla assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.LocalSLAAssignment
	for rows.Next() {
		var a models.LocalSLAAssignment
		if err := rows.Scan(&a.TenantID, &a.LocalID, &a.SLAID, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan local sla assignment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListChannelSLAAssignments returns every channel assignment of the tenant.
func (db *DB) ListChannelSLAAssignments(ctx context.Context, tenantID uuid.UUID) ([]*models.ChannelSLAAssignment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT tenant_id, channel_type, sla_id, updated_at
		FROM channel_sla_assignments
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list channel sla assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.ChannelSLAAssignment
	for rows.Next() {
		var a models.ChannelSLAAssignment
		var ch string
		if err := rows.Scan(&a.TenantID, &ch, &a.SLAID, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel sla assignment: %w", err)
		}
		a.ChannelType = models.ChannelType(ch)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SetLocalSLAAssignment upserts a local assignment. A nil slaID clears it.
func (db *DB) SetLocalSLAAssignment(ctx context.Context, tenantID, localID uuid.UUID, slaID *uuid.UUID) error {
	if err := db.checkPolicyTenant(ctx, tenantID, slaID); err != nil {
		return err
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO local_sla_assignments (tenant_id, local_id, sla_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, local_id) DO UPDATE SET sla_id = EXCLUDED.sla_id, updated_at = NOW()
	`, tenantID, localID, slaID)
	if err != nil {
		return fmt.Errorf("set local sla assignment: %w", err)
	}
	return nil
}

// SetChannelSLAAssignment upserts a channel assignment. A nil slaID clears it.
func (db *DB) SetChannelSLAAssignment(ctx context.Context, tenantID uuid.UUID, channelType models.ChannelType, slaID *uuid.UUID) error {
	if err := db.checkPolicyTenant(ctx, tenantID, slaID); err != nil {
		return err
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO channel_sla_assignments (tenant_id, channel_type, sla_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, channel_type) DO UPDATE SET sla_id = EXCLUDED.sla_id, updated_at = NOW()
	`, tenantID, string(channelType), slaID)
	if err != nil {
		return fmt.Errorf("set channel sla assignment: %w", err)
	}
	return nil
}

func (db *DB) checkPolicyTenant(ctx context.Context, tenantID uuid.UUID, slaID *uuid.UUID) error {
	if slaID == nil {
		return nil
	}
	p, err := db.GetSLAPolicyByID(ctx, *slaID)
	if err != nil {
		return err
	}
	if p == nil || p.TenantID != tenantID {
		return fmt.Errorf("assign sla %s: %w", *slaID, sla.ErrPolicyNotFound)
	}
	return nil
}
