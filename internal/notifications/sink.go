// Package notifications delivers SLA events to people and systems outside
// the monitor.
package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// EventType names an SLA notification.
type EventType string

const (
	EventSLAWarning       EventType = "sla_warning"
	EventSLAExpired       EventType = "sla_expired"
	EventSLAMisconfigured EventType = "sla_misconfigured"
)

// Sink delivers one notification to a set of recipients.
type Sink interface {
	Notify(ctx context.Context, recipientIDs []uuid.UUID, eventType EventType, payload any) error
}

// MultiSink fans a notification out to every sink. All sinks are attempted;
// failures are joined.
type MultiSink []Sink

// Notify implements Sink.
func (m MultiSink) Notify(ctx context.Context, recipientIDs []uuid.UUID, eventType EventType, payload any) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, recipientIDs, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
