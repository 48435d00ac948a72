// Package notify implements §4.K: the external Notifier contract and
// its concrete implementations.
package notify

import (
	"context"

	"github.com/aristath/ratewatch/internal/domain"
)

// Alert is the information a Notifier needs to format and dispatch one
// notification.
type Alert struct {
	Title      string
	Message    string
	Level      domain.AlertLevel
	URL        string
	RuleKey    string
	RuleName   string
	TriggerVal *float64
}

// Notifier dispatches a triggered alert to zero or more recipients.
// Implementations must not panic on a delivery failure; they report it
// via the returned error so the alert engine can log and retry on the
// next tick instead of losing the alert state entirely.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// levelPriority mirrors the Pushover priority/sound table: higher
// severity gets a louder, harder-to-miss notification.
var levelPriority = map[domain.AlertLevel]int{
	domain.LevelLow:      -1,
	domain.LevelMedium:   0,
	domain.LevelHigh:     1,
	domain.LevelCritical: 2,
}

func priorityFor(level domain.AlertLevel) int {
	if p, ok := levelPriority[level]; ok {
		return p
	}
	return levelPriority[domain.LevelMedium]
}

// shouldSendToTarget reports whether an alert at level meets a
// target's configured minimum level.
func shouldSendToTarget(level, minLevel domain.AlertLevel) bool {
	return level.AtLeast(minLevel)
}
