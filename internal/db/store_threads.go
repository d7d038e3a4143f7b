package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const threadColumns = `
	id, tenant_id, contact_id, contact_name, channel_type, local_id, assignee_id,
	status, created_at, last_inbound_message_at, last_agent_reply_at`

// awaitingClause selects open threads whose customer is waiting on an agent.
const awaitingClause = `
	tenant_id = $1
	AND status <> 'closed'
	AND (last_agent_reply_at IS NULL OR last_inbound_message_at > last_agent_reply_at)`

// referenceExpr mirrors models.Thread.ReferenceTime.
const referenceExpr = `
	CASE WHEN last_agent_reply_at IS NULL OR last_inbound_message_at IS NULL
		THEN created_at ELSE last_inbound_message_at END`

func scanThread(row rowScanner) (*models.Thread, error) {
	var t models.Thread
	var channel, status string
	if err := row.Scan(
		&t.ID, &t.TenantID, &t.ContactID, &t.ContactName, &channel, &t.LocalID, &t.AssigneeID,
		&status, &t.CreatedAt, &t.LastInboundMessageAt, &t.LastAgentReplyAt,
	); err != nil {
		return nil, err
	}
	t.ChannelType = models.ChannelType(channel)
	t.Status = models.ThreadStatus(status)
	return &t, nil
}

// appendThreadFilter adds the identity, creation and reference bounds of the
// filter to query. Expiry bounds are applied by the engine.
func appendThreadFilter(query string, args []any, filter models.ThreadFilter) (string, []any) {
	argIdx := len(args) + 1

	if filter.AgentID != nil {
		query += fmt.Sprintf(" AND assignee_id = $%d", argIdx)
		args = append(args, *filter.AgentID)
		argIdx++
	}
	if filter.LocalID != nil {
		query += fmt.Sprintf(" AND local_id = $%d", argIdx)
		args = append(args, *filter.LocalID)
		argIdx++
	}
	if filter.ChannelType != "" {
		query += fmt.Sprintf(" AND channel_type = $%d", argIdx)
		args = append(args, string(filter.ChannelType))
		argIdx++
	}
	if filter.CreatedFrom != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filter.CreatedFrom)
		argIdx++
	}
	if filter.CreatedTo != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filter.CreatedTo)
		argIdx++
	}
	if filter.ReferenceBefore != nil {
		query += fmt.Sprintf(" AND %s <= $%d", referenceExpr, argIdx)
		args = append(args, *filter.ReferenceBefore)
	}
	return query, args
}

func (db *DB) queryThreads(ctx context.Context, op, query string, args ...any) ([]*models.Thread, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return threads, nil
}

// ListOpenThreadsLackingResponse returns open threads awaiting an agent reply.
func (db *DB) ListOpenThreadsLackingResponse(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter) ([]*models.Thread, error) {
	query, args := appendThreadFilter(
		`SELECT `+threadColumns+` FROM threads WHERE `+awaitingClause,
		[]any{tenantID}, filter)
	query += " ORDER BY created_at ASC"
	return db.queryThreads(ctx, "list open threads lacking response", query, args...)
}

// ListOpenThreadsPastDeadline returns awaiting threads old enough to have
// breached the shortest active response window. Open time never exceeds wall
// time, so no expired thread is dropped.
func (db *DB) ListOpenThreadsPastDeadline(ctx context.Context, tenantID uuid.UUID, filter models.ThreadFilter) ([]*models.Thread, error) {
	query, args := appendThreadFilter(
		`SELECT `+threadColumns+` FROM threads WHERE `+awaitingClause,
		[]any{tenantID}, filter)

	if filter.ReferenceBefore != nil {
		query += fmt.Sprintf(`
			AND %s <= $%d::timestamptz - make_interval(mins => COALESCE(
				(SELECT MIN(response_time_minutes) FROM sla_policies WHERE tenant_id = $1 AND is_active), 0))`,
			referenceExpr, len(args)+1)
		args = append(args, *filter.ReferenceBefore)
	}
	query += " ORDER BY created_at ASC"
	return db.queryThreads(ctx, "list open threads past deadline", query, args...)
}

// GetThread returns a thread of the tenant, or nil if it does not exist.
func (db *DB) GetThread(ctx context.Context, tenantID, threadID uuid.UUID) (*models.Thread, error) {
	t, err := scanThread(db.Pool.QueryRow(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE tenant_id = $1 AND id = $2`,
		tenantID, threadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

// UpsertThread inserts or replaces a thread row.
func (db *DB) UpsertThread(ctx context.Context, t *models.Thread) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO threads (`+threadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			contact_name = EXCLUDED.contact_name,
			channel_type = EXCLUDED.channel_type,
			local_id = EXCLUDED.local_id,
			assignee_id = EXCLUDED.assignee_id,
			status = EXCLUDED.status,
			last_inbound_message_at = EXCLUDED.last_inbound_message_at,
			last_agent_reply_at = EXCLUDED.last_agent_reply_at
	`, t.ID, t.TenantID, t.ContactID, t.ContactName, string(t.ChannelType), t.LocalID, t.AssigneeID,
		string(t.Status), t.CreatedAt, t.LastInboundMessageAt, t.LastAgentReplyAt)
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}

// ListLocalIDs returns the IDs of every local of the tenant.
func (db *DB) ListLocalIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM locals WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list locals: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan local: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListChannelTypes returns the channels enabled for the tenant.
func (db *DB) ListChannelTypes(ctx context.Context, tenantID uuid.UUID) ([]models.ChannelType, error) {
	rows, err := db.Pool.Query(ctx, `SELECT channel_type FROM tenant_channels WHERE tenant_id = $1 ORDER BY channel_type`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list channel types: %w", err)
	}
	defer rows.Close()

	var channels []models.ChannelType
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, fmt.Errorf("scan channel type: %w", err)
		}
		channels = append(channels, models.ChannelType(ch))
	}
	return channels, rows.Err()
}

// ListTenantIDs returns every tenant the monitor should scan.
func (db *DB) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateTenant inserts a tenant.
func (db *DB) CreateTenant(ctx context.Context, id uuid.UUID, name string) error {
	_, err := db.Pool.Exec(ctx, `INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`, id, name, time.Now())
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// CreateLocal inserts a local of the tenant.
func (db *DB) CreateLocal(ctx context.Context, tenantID, id uuid.UUID, name string) error {
	_, err := db.Pool.Exec(ctx, `INSERT INTO locals (id, tenant_id, name) VALUES ($1, $2, $3)`, id, tenantID, name)
	if err != nil {
		return fmt.Errorf("create local: %w", err)
	}
	return nil
}

// EnableChannel marks a channel type as in use by the tenant.
func (db *DB) EnableChannel(ctx context.Context, tenantID uuid.UUID, channelType models.ChannelType) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO tenant_channels (tenant_id, channel_type) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, tenantID, string(channelType))
	if err != nil {
		return fmt.Errorf("enable channel: %w", err)
	}
	return nil
}
