package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the structured logger instead of
// dispatching them externally. It is the default Notifier when no
// Pushover targets are configured, and a convenient test double.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "log_notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.log.Warn().
		Str("rule_key", alert.RuleKey).
		Str("rule_name", alert.RuleName).
		Str("level", string(alert.Level)).
		Str("title", alert.Title).
		Msg(alert.Message)
	return nil
}
