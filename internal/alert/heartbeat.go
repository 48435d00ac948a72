package alert

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/domain"
)

// monitorRefPattern extracts the single monitor id a heartbeat-enabled
// alert rule's condition is expected to reference, e.g.
// "${monitor:btc_apy} > 0" -> "btc_apy".
var monitorRefPattern = regexp.MustCompile(`\$\{monitor:([^}]+)\}`)

// MonitorClock reports when a monitor's value was last computed, and
// whether it is enabled. Satisfied by *monitor.Registry.
type MonitorClock interface {
	Get(id string) (domain.Monitor, error)
	LastComputedAt(monitorID string) (*time.Time, error)
}

// HeartbeatChecker watches alert rules with heartbeat_enabled=true and
// fires an alert through the same Engine dispatch path when the
// referenced monitor's data goes stale, resolving it automatically
// once fresh data resumes (§4.I).
type HeartbeatChecker struct {
	engine *Engine
	clock  MonitorClock
	log    zerolog.Logger
}

func NewHeartbeatChecker(engine *Engine, clock MonitorClock, log zerolog.Logger) *HeartbeatChecker {
	return &HeartbeatChecker{engine: engine, clock: clock, log: log.With().Str("component", "heartbeat_checker").Logger()}
}

// CheckAll evaluates every heartbeat-enabled alert rule. Returns the
// ids of rules whose heartbeat alert fired this tick.
func (h *HeartbeatChecker) CheckAll(ctx context.Context) ([]string, error) {
	rules, err := h.engine.ListRules(true)
	if err != nil {
		return nil, err
	}

	var fired []string
	for _, rule := range rules {
		if !rule.HeartbeatEnabled || rule.HeartbeatIntervalS <= 0 {
			continue
		}
		ok, err := h.checkRule(ctx, rule)
		if err != nil {
			h.log.Error().Err(err).Str("rule_id", rule.ID).Msg("heartbeat check failed")
			continue
		}
		if ok {
			fired = append(fired, rule.ID)
		}
	}
	return fired, nil
}

func (h *HeartbeatChecker) checkRule(ctx context.Context, rule domain.AlertRule) (bool, error) {
	heartbeatKey := "heartbeat_" + rule.ID

	m := monitorRefPattern.FindStringSubmatch(rule.Condition)
	if m == nil {
		h.log.Warn().Str("rule_id", rule.ID).Msg("heartbeat rule condition has no monitor reference")
		return false, nil
	}
	monitorID := m[1]

	mon, err := h.clock.Get(monitorID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			h.log.Warn().Str("monitor_id", monitorID).Msg("heartbeat monitor not found")
			return false, nil
		}
		return false, err
	}

	computedAt, err := h.clock.LastComputedAt(monitorID)
	if err != nil {
		return false, err
	}
	if computedAt == nil {
		h.log.Debug().Str("monitor_id", monitorID).Msg("no values yet for heartbeat monitor")
		return false, nil
	}

	elapsed := time.Since(*computedAt)
	if elapsed <= time.Duration(rule.HeartbeatIntervalS)*time.Second {
		if err := h.engine.resolveState(heartbeatKey); err != nil {
			return false, err
		}
		return false, nil
	}

	message := fmt.Sprintf(
		"Monitor: %s\nExpected interval: %ds\nTime since last update: %.0fs\nLast update: %s UTC",
		mon.Name, rule.HeartbeatIntervalS, elapsed.Seconds(), computedAt.Format(time.RFC3339),
	)
	return h.engine.dispatch(ctx, heartbeatKey, mon.Name+" — Heartbeat Timeout", rule.Level, rule.CooldownS, message, nil)
}
