package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelType identifies the messaging channel a thread arrived on.
type ChannelType string

const (
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelInstagram ChannelType = "instagram"
	ChannelMessenger ChannelType = "messenger"
	ChannelEmail     ChannelType = "email"
	ChannelWebChat   ChannelType = "webchat"
	ChannelTelegram  ChannelType = "telegram"
)

// IsValid reports whether c is a known channel type.
func (c ChannelType) IsValid() bool {
	switch c {
	case ChannelWhatsApp, ChannelInstagram, ChannelMessenger, ChannelEmail, ChannelWebChat, ChannelTelegram:
		return true
	}
	return false
}

// LocalSLAAssignment binds an SLA policy to a tenant location. A nil SLAID
// means the assignment was explicitly cleared.
type LocalSLAAssignment struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	LocalID   uuid.UUID  `json:"local_id"`
	SLAID     *uuid.UUID `json:"sla_id,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ChannelSLAAssignment binds an SLA policy to a channel type within a tenant.
type ChannelSLAAssignment struct {
	TenantID    uuid.UUID   `json:"tenant_id"`
	ChannelType ChannelType `json:"channel_type"`
	SLAID       *uuid.UUID  `json:"sla_id,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SLASource names the hierarchy level an effective SLA was resolved from.
type SLASource string

const (
	SLASourceLocal   SLASource = "local"
	SLASourceChannel SLASource = "channel"
	SLASourceTenant  SLASource = "tenant"
	SLASourceNone    SLASource = "none"
)

// EffectiveSLA is the policy that governs a thread after hierarchy resolution.
// It is computed per call and never persisted.
type EffectiveSLA struct {
	SLAID  *uuid.UUID `json:"sla_id,omitempty"`
	Source SLASource  `json:"source"`
	Policy *SLAPolicy `json:"policy,omitempty"`
}

// NoSLA returns the effective SLA used when nothing applies.
func NoSLA() *EffectiveSLA {
	return &EffectiveSLA{Source: SLASourceNone}
}

// Applies returns true if a policy was resolved.
func (e *EffectiveSLA) Applies() bool {
	return e != nil && e.Source != SLASourceNone && e.Policy != nil
}

// PolicyName returns the applied policy's name or an empty string.
func (e *EffectiveSLA) PolicyName() string {
	if !e.Applies() {
		return ""
	}
	return e.Policy.Name
}
