// Package handlers contains the gin HTTP handlers of the slawatch API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SLAHandler serves SLA dashboards and per-thread state.
type SLAHandler struct {
	engine *sla.Engine
	logger zerolog.Logger
}

// NewSLAHandler creates a new SLAHandler.
func NewSLAHandler(engine *sla.Engine, logger zerolog.Logger) *SLAHandler {
	return &SLAHandler{
		engine: engine,
		logger: logger.With().Str("component", "sla_handler").Logger(),
	}
}

// RegisterRoutes registers SLA routes on the given router group.
func (h *SLAHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/tenants/:tenant_id/sla")
	{
		g.GET("/warnings", h.Warnings)
		g.GET("/warnings/stats", h.WarningStats)
		g.GET("/expired", h.Expired)
		g.GET("/expired/stats", h.ExpiredStats)
		g.GET("/expired/range", h.ExpiredRange)
		g.GET("/summary", h.Summary)
		g.GET("/coverage", h.Coverage)
		g.GET("/resolve", h.Resolve)
		g.GET("/policies/:sla_id", h.GetPolicy)
		g.GET("/threads/:thread_id", h.ThreadState)
		g.GET("/threads/:thread_id/expired", h.ThreadExpired)
	}
}

// Warnings lists threads approaching their response deadline.
// GET /api/v1/tenants/:tenant_id/sla/warnings
func (h *SLAHandler) Warnings(c *gin.Context) {
	tenantID, filter, opts, ok := h.scanRequest(c)
	if !ok {
		return
	}

	report, err := h.engine.Warnings.Scan(c.Request.Context(), tenantID, filter, opts...)
	if err != nil && report == nil {
		h.fail(c, err, "failed to scan sla warnings")
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("returning partial warning scan")
	}
	c.JSON(http.StatusOK, report)
}

// WarningStats returns warning counts per level.
// GET /api/v1/tenants/:tenant_id/sla/warnings/stats
func (h *SLAHandler) WarningStats(c *gin.Context) {
	tenantID, filter, _, ok := h.scanRequest(c)
	if !ok {
		return
	}

	stats, err := h.engine.Warnings.Stats(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.fail(c, err, "failed to compute warning stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Expired lists threads past their response deadline.
// GET /api/v1/tenants/:tenant_id/sla/expired
func (h *SLAHandler) Expired(c *gin.Context) {
	tenantID, filter, opts, ok := h.scanRequest(c)
	if !ok {
		return
	}

	report, err := h.engine.Expired.Scan(c.Request.Context(), tenantID, filter, opts...)
	h.expiredResponse(c, tenantID, report, err)
}

// ExpiredRange lists threads whose deadline fell inside expired_from..expired_to.
// GET /api/v1/tenants/:tenant_id/sla/expired/range
func (h *SLAHandler) ExpiredRange(c *gin.Context) {
	tenantID, filter, opts, ok := h.scanRequest(c)
	if !ok {
		return
	}

	report, err := h.engine.Expired.ScanRange(c.Request.Context(), tenantID, filter, opts...)
	h.expiredResponse(c, tenantID, report, err)
}

func (h *SLAHandler) expiredResponse(c *gin.Context, tenantID uuid.UUID, report *sla.ExpiredReport, err error) {
	if err != nil && report == nil {
		h.fail(c, err, "failed to scan expired threads")
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("returning partial expired scan")
	}
	c.JSON(http.StatusOK, report)
}

// ExpiredStats returns expired counts per severity.
// GET /api/v1/tenants/:tenant_id/sla/expired/stats
func (h *SLAHandler) ExpiredStats(c *gin.Context) {
	tenantID, filter, _, ok := h.scanRequest(c)
	if !ok {
		return
	}

	stats, err := h.engine.Expired.Stats(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.fail(c, err, "failed to compute expired stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Summary returns the combined dashboard view.
// GET /api/v1/tenants/:tenant_id/sla/summary
func (h *SLAHandler) Summary(c *gin.Context) {
	tenantID, filter, _, ok := h.scanRequest(c)
	if !ok {
		return
	}

	summary, err := h.engine.Stats.Summary(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.fail(c, err, "failed to compute sla summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Coverage returns assignment coverage of locals and channels.
// GET /api/v1/tenants/:tenant_id/sla/coverage
func (h *SLAHandler) Coverage(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}

	coverage, err := h.engine.Stats.Coverage(c.Request.Context(), tenantID)
	if err != nil {
		h.fail(c, err, "failed to compute sla coverage")
		return
	}
	c.JSON(http.StatusOK, coverage)
}

// Resolve returns the SLA that governs a local and channel.
// GET /api/v1/tenants/:tenant_id/sla/resolve?local_id=&channel_type=
func (h *SLAHandler) Resolve(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	localID, err := optionalUUID(c.Query("local_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid local_id"})
		return
	}
	channel := models.ChannelType(c.Query("channel_type"))
	if channel != "" && !channel.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_type"})
		return
	}

	eff, err := h.engine.Resolver.Resolve(c.Request.Context(), tenantID, localID, channel)
	if err != nil {
		h.fail(c, err, "failed to resolve sla")
		return
	}
	c.JSON(http.StatusOK, eff)
}

// GetPolicy returns one of the tenant's policies, active or not.
// GET /api/v1/tenants/:tenant_id/sla/policies/:sla_id
func (h *SLAHandler) GetPolicy(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	slaID, ok := uuidParam(c, "sla_id")
	if !ok {
		return
	}

	policy, err := h.engine.Resolver.GetPolicy(c.Request.Context(), tenantID, slaID)
	if err != nil {
		h.fail(c, err, "failed to get sla policy")
		return
	}
	c.JSON(http.StatusOK, policy)
}

// ThreadState returns the full SLA state of one thread.
// GET /api/v1/tenants/:tenant_id/sla/threads/:thread_id
func (h *SLAHandler) ThreadState(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	threadID, ok := uuidParam(c, "thread_id")
	if !ok {
		return
	}

	state, err := h.engine.ThreadState(c.Request.Context(), tenantID, threadID)
	if err != nil {
		h.fail(c, err, "failed to evaluate thread")
		return
	}
	c.JSON(http.StatusOK, state)
}

// ThreadExpired reports whether a thread is past its deadline and by how much.
// GET /api/v1/tenants/:tenant_id/sla/threads/:thread_id/expired
func (h *SLAHandler) ThreadExpired(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	threadID, ok := uuidParam(c, "thread_id")
	if !ok {
		return
	}

	overdue, err := h.engine.Expired.GetThreadOverdue(c.Request.Context(), tenantID, threadID)
	if err != nil {
		h.fail(c, err, "failed to check thread expiry")
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": overdue != nil, "overdue": overdue})
}

// scanRequest parses the tenant, filter and partial flag shared by scan endpoints.
func (h *SLAHandler) scanRequest(c *gin.Context) (uuid.UUID, models.ThreadFilter, []sla.ScanOption, bool) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return uuid.Nil, models.ThreadFilter{}, nil, false
	}
	filter, err := ParseThreadFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, models.ThreadFilter{}, nil, false
	}

	var opts []sla.ScanOption
	if partial, _ := strconv.ParseBool(c.Query("partial")); partial {
		opts = append(opts, sla.WithPartialResults())
	}
	return tenantID, filter, opts, true
}

// ParseThreadFilter reads a ThreadFilter from query parameters. Times are RFC 3339.
func ParseThreadFilter(c *gin.Context) (models.ThreadFilter, error) {
	var f models.ThreadFilter
	var err error

	if f.AgentID, err = optionalUUID(c.Query("agent_id")); err != nil {
		return f, fmt.Errorf("invalid agent_id")
	}
	if f.LocalID, err = optionalUUID(c.Query("local_id")); err != nil {
		return f, fmt.Errorf("invalid local_id")
	}
	if ch := models.ChannelType(c.Query("channel_type")); ch != "" {
		if !ch.IsValid() {
			return f, fmt.Errorf("invalid channel_type")
		}
		f.ChannelType = ch
	}

	times := []struct {
		name string
		dst  **time.Time
	}{
		{"created_from", &f.CreatedFrom},
		{"created_to", &f.CreatedTo},
		{"expired_from", &f.ExpiredFrom},
		{"expired_to", &f.ExpiredTo},
	}
	for _, tp := range times {
		raw := c.Query(tp.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s: expected RFC 3339 timestamp", tp.name)
		}
		*tp.dst = &ts
	}
	return f, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// fail maps engine errors to an HTTP status.
func (h *SLAHandler) fail(c *gin.Context, err error, msg string) {
	status := StatusForError(err)
	event := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).Str("path", c.FullPath()).Msg(msg)

	body := gin.H{"error": msg}
	if status < http.StatusInternalServerError {
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}

// StatusForError returns the HTTP status for an engine error.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, sla.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, sla.ErrPolicyNotFound), errors.Is(err, sla.ErrThreadNotFound):
		return http.StatusNotFound
	case sla.IsConfigurationError(err):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sla.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
