package notify

import (
	"context"
	"log/slog"
)

// LogSink writes notifications to the structured log. It is the fallback when
// no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		"kind", string(n.Kind),
		"recipient", n.Recipient.String(),
		"submission_id", n.SubmissionID.String(),
		"subject", n.Subject,
	)
	return nil
}
