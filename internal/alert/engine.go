package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/domain"
	"github.com/aristath/ratewatch/internal/notify"
)

// Engine evaluates alert rule conditions on a fixed tick, dispatching
// through Notifier with per-rule cooldowns and mirroring the
// triggered/resolved lifecycle against alert_states (§4.H).
type Engine struct {
	db       *sql.DB
	evaluate Evaluator
	notifier notify.Notifier
	log      zerolog.Logger
}

func New(db *sql.DB, evaluate Evaluator, notifier notify.Notifier, log zerolog.Logger) *Engine {
	return &Engine{db: db, evaluate: evaluate, notifier: notifier, log: log.With().Str("component", "alert_engine").Logger()}
}

// --- Alert rule CRUD (§6 /alert-rules routes) ---

func (e *Engine) CreateRule(rule domain.AlertRule) (domain.AlertRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if !rule.Level.Valid() {
		return domain.AlertRule{}, apperror.New(apperror.KindValidationFailed, "invalid alert level: "+string(rule.Level))
	}
	if _, err := ParseCondition(rule.Condition); err != nil {
		return domain.AlertRule{}, err
	}

	now := time.Now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now

	_, err := e.db.Exec(`
		INSERT INTO alert_rules (id, name, condition, level, enabled, cooldown_s, heartbeat_enabled, heartbeat_interval_s, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, rule.Condition, string(rule.Level), boolToInt(rule.Enabled), rule.CooldownS,
		boolToInt(rule.HeartbeatEnabled), rule.HeartbeatIntervalS, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return domain.AlertRule{}, apperror.Wrap(apperror.KindStoreUnavailable, "insert alert rule", err)
	}
	return rule, nil
}

func (e *Engine) UpdateRule(rule domain.AlertRule) (domain.AlertRule, error) {
	existing, err := e.GetRule(rule.ID)
	if err != nil {
		return domain.AlertRule{}, err
	}
	if !rule.Level.Valid() {
		return domain.AlertRule{}, apperror.New(apperror.KindValidationFailed, "invalid alert level: "+string(rule.Level))
	}
	if _, err := ParseCondition(rule.Condition); err != nil {
		return domain.AlertRule{}, err
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	_, err = e.db.Exec(`
		UPDATE alert_rules SET name=?, condition=?, level=?, enabled=?, cooldown_s=?, heartbeat_enabled=?, heartbeat_interval_s=?, updated_at=?
		WHERE id=?
	`, rule.Name, rule.Condition, string(rule.Level), boolToInt(rule.Enabled), rule.CooldownS,
		boolToInt(rule.HeartbeatEnabled), rule.HeartbeatIntervalS, rule.UpdatedAt.Format(time.RFC3339Nano), rule.ID)
	if err != nil {
		return domain.AlertRule{}, apperror.Wrap(apperror.KindStoreUnavailable, "update alert rule", err)
	}
	return rule, nil
}

func (e *Engine) DeleteRule(id string) error {
	res, err := e.db.Exec(`DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return apperror.Wrap(apperror.KindStoreUnavailable, "delete alert rule", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperror.New(apperror.KindNotFound, "alert rule not found: "+id)
	}
	return nil
}

func (e *Engine) GetRule(id string) (domain.AlertRule, error) {
	row := e.db.QueryRow(`
		SELECT id, name, condition, level, enabled, cooldown_s, heartbeat_enabled, heartbeat_interval_s, created_at, updated_at
		FROM alert_rules WHERE id = ?
	`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return domain.AlertRule{}, apperror.New(apperror.KindNotFound, "alert rule not found: "+id)
	}
	if err != nil {
		return domain.AlertRule{}, apperror.Wrap(apperror.KindStoreUnavailable, "get alert rule", err)
	}
	return rule, nil
}

func (e *Engine) ListRules(enabledOnly bool) ([]domain.AlertRule, error) {
	query := `SELECT id, name, condition, level, enabled, cooldown_s, heartbeat_enabled, heartbeat_interval_s, created_at, updated_at FROM alert_rules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	rows, err := e.db.Query(query)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "list alert rules", err)
	}
	defer rows.Close()

	var out []domain.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindStoreUnavailable, "scan alert rule", err)
		}
		out = append(out, rule)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (domain.AlertRule, error) {
	var rule domain.AlertRule
	var level string
	var enabled, heartbeatEnabled int
	var createdAt, updatedAt string
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Condition, &level, &enabled, &rule.CooldownS,
		&heartbeatEnabled, &rule.HeartbeatIntervalS, &createdAt, &updatedAt); err != nil {
		return domain.AlertRule{}, err
	}
	rule.Level = domain.AlertLevel(level)
	rule.Enabled = enabled != 0
	rule.HeartbeatEnabled = heartbeatEnabled != 0
	rule.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rule.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- evaluation tick (~30s per §4.H) ---

// CheckAll evaluates every enabled alert rule's condition, dispatching
// a notification (subject to cooldown) for newly- or still-triggered
// rules and resolving the active state of any rule whose condition
// stopped holding. Returns the ids of rules that fired a notification
// this tick.
func (e *Engine) CheckAll(ctx context.Context) ([]string, error) {
	rules, err := e.ListRules(true)
	if err != nil {
		return nil, err
	}

	var notified []string
	for _, rule := range rules {
		fired, err := e.checkRule(ctx, rule)
		if err != nil {
			e.log.Error().Err(err).Str("rule_id", rule.ID).Msg("alert check failed")
			continue
		}
		if fired {
			notified = append(notified, rule.ID)
		}
	}
	return notified, nil
}

func (e *Engine) checkRule(ctx context.Context, rule domain.AlertRule) (bool, error) {
	cond, err := ParseCondition(rule.Condition)
	if err != nil {
		return false, err
	}

	result, triggerValue, err := cond.Evaluate(e.evaluate)
	if err != nil {
		return false, err
	}
	if result == nil {
		e.log.Debug().Str("rule_id", rule.ID).Msg("condition could not be evaluated, skipping")
		return false, nil
	}

	if !*result {
		if err := e.resolveState(rule.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	return e.dispatch(ctx, rule.ID, rule.Name, rule.Level, rule.CooldownS, rule.Condition, triggerValue)
}

// dispatch implements the shared cooldown/notify/record-state path
// used by both threshold alerts (ruleKey == rule id) and heartbeat
// alerts (ruleKey == "heartbeat_<rule id>").
func (e *Engine) dispatch(ctx context.Context, ruleKey, title string, level domain.AlertLevel, cooldownS int, message string, triggerValue *float64) (bool, error) {
	state, err := e.activeState(ruleKey)
	if err != nil {
		return false, err
	}

	if state != nil {
		elapsed := time.Since(state.LastNotifiedAt)
		if elapsed < time.Duration(cooldownS)*time.Second {
			e.log.Debug().Str("rule_key", ruleKey).Dur("elapsed", elapsed).Msg("alert in cooldown")
			return false, nil
		}
	}

	alert := notify.Alert{
		Title:      fmt.Sprintf("Alert: %s", title),
		Message:    message,
		Level:      level,
		RuleKey:    ruleKey,
		RuleName:   title,
		TriggerVal: triggerValue,
	}
	if err := e.notifier.Notify(ctx, alert); err != nil {
		return false, apperror.Wrap(apperror.KindNotifierFailed, "dispatch alert", err)
	}

	if state != nil {
		_, err = e.db.Exec(`UPDATE alert_states SET last_notified_at=?, notification_count=notification_count+1 WHERE id=?`,
			time.Now().UTC().Format(time.RFC3339Nano), state.ID)
	} else {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err = e.db.Exec(`
			INSERT INTO alert_states (rule_key, level, triggered_at, last_notified_at, notification_count, is_active)
			VALUES (?, ?, ?, ?, 1, 1)
		`, ruleKey, string(level), now, now)
	}
	if err != nil {
		return false, apperror.Wrap(apperror.KindStoreUnavailable, "record alert state", err)
	}
	return true, nil
}

func (e *Engine) activeState(ruleKey string) (*domain.AlertState, error) {
	row := e.db.QueryRow(`
		SELECT id, rule_key, level, triggered_at, last_notified_at, notification_count, resolved_at, is_active
		FROM alert_states WHERE rule_key = ? AND is_active = 1
		ORDER BY triggered_at DESC LIMIT 1
	`, ruleKey)

	var s domain.AlertState
	var level, triggeredAt, lastNotifiedAt string
	var resolvedAt sql.NullString
	var isActive int
	err := row.Scan(&s.ID, &s.RuleKey, &level, &triggeredAt, &lastNotifiedAt, &s.NotificationCount, &resolvedAt, &isActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "query active alert state", err)
	}
	s.Level = domain.AlertLevel(level)
	s.TriggeredAt, _ = time.Parse(time.RFC3339Nano, triggeredAt)
	s.LastNotifiedAt, _ = time.Parse(time.RFC3339Nano, lastNotifiedAt)
	s.IsActive = isActive != 0
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, resolvedAt.String)
		s.ResolvedAt = &t
	}
	return &s, nil
}

// resolveState marks any active state for ruleKey as resolved, the
// counterpart to monitor_alert_checker.py clearing its in-memory
// active flag once a condition stops holding.
func (e *Engine) resolveState(ruleKey string) error {
	_, err := e.db.Exec(`
		UPDATE alert_states SET is_active = 0, resolved_at = ?
		WHERE rule_key = ? AND is_active = 1
	`, time.Now().UTC().Format(time.RFC3339Nano), ruleKey)
	if err != nil {
		return apperror.Wrap(apperror.KindStoreUnavailable, "resolve alert state", err)
	}
	return nil
}
