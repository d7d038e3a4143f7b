package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSink writes notifications to a structured log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notification_log").Logger()}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, recipientIDs []uuid.UUID, eventType EventType, payload any) error {
	ids := make([]string, len(recipientIDs))
	for i, id := range recipientIDs {
		ids[i] = id.String()
	}

	event := s.logger.Info()
	if eventType == EventSLAExpired || eventType == EventSLAMisconfigured {
		event = s.logger.Warn()
	}
	event.
		Str("event_type", string(eventType)).
		Strs("recipients", ids).
		Interface("payload", payload).
		Msg("sla notification")
	return nil
}
