// Package operator is the admin-notification channel spec.md §7 requires
// for InvalidCookies, BotDetection, and Internal failures. No alerting
// library appears anywhere in the example pack, so the default
// implementation logs at Error level with a field consumers can alert on,
// following the teacher's structured zerolog idiom.
package operator

import (
	"doradura/internal/errors"
	"doradura/internal/logger"
)

// Notifier is the external collaborator the Worker reports operator-grade
// failures to. A real deployment would inject a Slack/PagerDuty adapter;
// nothing in scope here requires one.
type Notifier interface {
	Notify(jobID string, kind errors.Kind, op string, detail string)
}

// LogNotifier is the default Notifier: structured log lines flagged for
// alerting, no outbound call.
type LogNotifier struct{}

// New creates the default log-only Notifier.
func New() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(jobID string, kind errors.Kind, op string, detail string) {
	logger.Log.Error().
		Str("jobID", jobID).
		Str("kind", string(kind)).
		Str("op", op).
		Str("detail", detail).
		Bool("notify_admin", true).
		Msg("job requires operator attention")
}
