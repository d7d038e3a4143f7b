package models

import (
	"time"

	"github.com/google/uuid"
)

// ThreadStatus is the lifecycle status of a conversation.
type ThreadStatus string

const (
	ThreadStatusOpen    ThreadStatus = "open"
	ThreadStatusPending ThreadStatus = "pending"
	ThreadStatusClosed  ThreadStatus = "closed"
)

// Thread is a single customer conversation on a channel.
type Thread struct {
	ID                   uuid.UUID    `json:"id"`
	TenantID             uuid.UUID    `json:"tenant_id"`
	ContactID            uuid.UUID    `json:"contact_id"`
	ContactName          string       `json:"contact_name,omitempty"`
	ChannelType          ChannelType  `json:"channel_type"`
	LocalID              *uuid.UUID   `json:"local_id,omitempty"`
	AssigneeID           *uuid.UUID   `json:"assignee_id,omitempty"`
	Status               ThreadStatus `json:"status"`
	CreatedAt            time.Time    `json:"created_at"`
	LastInboundMessageAt *time.Time   `json:"last_inbound_message_at,omitempty"`
	LastAgentReplyAt     *time.Time   `json:"last_agent_reply_at,omitempty"`
}

// IsOpen returns true unless the thread is closed.
func (t *Thread) IsOpen() bool {
	return t.Status != ThreadStatusClosed
}

// AwaitingResponse returns true if the customer is waiting on an agent: no
// agent reply yet, or an inbound message arrived after the last reply.
func (t *Thread) AwaitingResponse() bool {
	if t.LastAgentReplyAt == nil {
		return true
	}
	return t.LastInboundMessageAt != nil && t.LastInboundMessageAt.After(*t.LastAgentReplyAt)
}

// ReferenceTime returns the instant the response clock started. Follow-up
// messages do not restart the clock for a first response.
func (t *Thread) ReferenceTime() time.Time {
	if t.LastAgentReplyAt == nil || t.LastInboundMessageAt == nil {
		return t.CreatedAt
	}
	return *t.LastInboundMessageAt
}

// ThreadFilter narrows the set of threads a scan considers. Zero values match all.
type ThreadFilter struct {
	AgentID     *uuid.UUID  `json:"agent_id,omitempty"`
	LocalID     *uuid.UUID  `json:"local_id,omitempty"`
	ChannelType ChannelType `json:"channel_type,omitempty"`

	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
	ExpiredFrom *time.Time `json:"expired_from,omitempty"`
	ExpiredTo   *time.Time `json:"expired_to,omitempty"`

	// ReferenceBefore lets stores drop threads whose clock started after it.
	ReferenceBefore *time.Time `json:"-"`
}

// Matches reports whether the thread satisfies the identity and creation
// filters. Expiry bounds depend on derived deadlines and are checked elsewhere.
func (f ThreadFilter) Matches(t *Thread) bool {
	if f.AgentID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AgentID) {
		return false
	}
	if f.LocalID != nil && (t.LocalID == nil || *t.LocalID != *f.LocalID) {
		return false
	}
	if f.ChannelType != "" && t.ChannelType != f.ChannelType {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}
