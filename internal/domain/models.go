// Package domain holds the plain data types shared across the store,
// formula engine, monitor registry and alert engine.
package domain

import "time"

// Sample is the uniform record written by every producer: pollers,
// the distill webhook handler, and on-chain account queries.
// Every Sample is immutable once persisted.
type Sample struct {
	ID            int64     `json:"id"`
	SourceID      string    `json:"source_id"`
	DisplayName   string    `json:"display_name"`
	Value         *float64  `json:"value"`
	Text          string    `json:"text"`
	Unit          string    `json:"unit"`
	DecimalPlaces int       `json:"decimal_places"`
	Timestamp     time.Time `json:"timestamp"`
	ReceivedAt    time.Time `json:"received_at"`
	IsChange      bool      `json:"is_change"`
	PreviousValue *float64  `json:"previous_value"`
}

// SourceSummary is the aggregate stats `Store.SummaryAll` returns for
// each distinct source_id.
type SourceSummary struct {
	SourceID    string  `json:"source_id"`
	Count       int     `json:"count"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	ChangeCount int     `json:"change_count"`
	Latest      *Sample `json:"latest"`
}

// Monitor is a user-authored metric: a display wrapper around a
// formula evaluated by the formula engine.
type Monitor struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Unit               string    `json:"unit"`
	Color              string    `json:"color"`
	Description        string    `json:"description"`
	DecimalPlaces      int       `json:"decimal_places"`
	Formula            string    `json:"formula"`
	Enabled            bool      `json:"enabled"`
	HeartbeatIntervalS int       `json:"heartbeat_interval_s"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MonitorValue is the cached, computed value of a Monitor at a point
// in time. A new row is only ever written when the value changes by
// more than 1e-10 from the previously cached value.
type MonitorValue struct {
	ID           int64     `json:"id"`
	MonitorID    string    `json:"monitor_id"`
	Value        float64   `json:"value"`
	ComputedAt   time.Time `json:"computed_at"`
	Dependencies []string  `json:"dependencies"`
}

// AlertLevel is the dispatch tier of an alert rule or heartbeat.
type AlertLevel string

const (
	LevelLow      AlertLevel = "low"
	LevelMedium   AlertLevel = "medium"
	LevelHigh     AlertLevel = "high"
	LevelCritical AlertLevel = "critical"
)

// levelRank gives the tier a total order for min-level comparisons.
var levelRank = map[AlertLevel]int{
	LevelLow:      0,
	LevelMedium:   1,
	LevelHigh:     2,
	LevelCritical: 3,
}

// Rank returns this level's position in low < medium < high < critical.
// Unknown levels rank below "low".
func (l AlertLevel) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether l is at least as severe as min.
func (l AlertLevel) AtLeast(min AlertLevel) bool {
	return l.Rank() >= min.Rank()
}

// Valid reports whether l is one of the four known tiers.
func (l AlertLevel) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// AlertRule is a user-authored boolean condition over formulas, with
// cooldown and optional heartbeat-staleness semantics.
type AlertRule struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Condition          string     `json:"condition"`
	Level              AlertLevel `json:"level"`
	Enabled            bool       `json:"enabled"`
	CooldownS          int        `json:"cooldown_s"`
	HeartbeatEnabled   bool       `json:"heartbeat_enabled"`
	HeartbeatIntervalS int        `json:"heartbeat_interval_s"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// AlertState tracks a live (or resolved) alert. RuleKey is either an
// AlertRule.ID (threshold alerts) or "heartbeat_<rule_id>" (heartbeat
// breaches), so the two kinds never collide on the same state.
type AlertState struct {
	ID                int64      `json:"id"`
	RuleKey           string     `json:"rule_key"`
	Level             AlertLevel `json:"level"`
	TriggeredAt       time.Time  `json:"triggered_at"`
	LastNotifiedAt    time.Time  `json:"last_notified_at"`
	NotificationCount int        `json:"notification_count"`
	ResolvedAt        *time.Time `json:"resolved_at"`
	IsActive          bool       `json:"is_active"`
}

// NotificationTarget is a configured recipient of dispatched alerts.
type NotificationTarget struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	RecipientKey string     `json:"recipient_key"`
	AuthToken    string     `json:"auth_token,omitempty"`
	Enabled      bool       `json:"enabled"`
	MinLevel     AlertLevel `json:"min_level"`
}
