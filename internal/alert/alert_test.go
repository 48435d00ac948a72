package alert

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ratewatch/internal/domain"
	"github.com/aristath/ratewatch/internal/notify"
)

const schemaForTest = `
CREATE TABLE alert_rules (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	condition             TEXT NOT NULL,
	level                 TEXT NOT NULL,
	enabled               INTEGER NOT NULL DEFAULT 1,
	cooldown_s            INTEGER NOT NULL DEFAULT 300,
	heartbeat_enabled     INTEGER NOT NULL DEFAULT 0,
	heartbeat_interval_s  INTEGER NOT NULL DEFAULT 0,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE TABLE alert_states (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_key            TEXT NOT NULL,
	level               TEXT NOT NULL,
	triggered_at        DATETIME NOT NULL,
	last_notified_at    DATETIME NOT NULL,
	notification_count  INTEGER NOT NULL DEFAULT 0,
	resolved_at         DATETIME,
	is_active           INTEGER NOT NULL DEFAULT 1
);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(schemaForTest)
	require.NoError(t, err)
	return db
}

func floatPtr(v float64) *float64 { return &v }

type mapEvaluator map[string]*float64

func (m mapEvaluator) Evaluate(formula string) (*float64, error) {
	return m[formula], nil
}

type recordingNotifier struct {
	calls []notify.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, alert notify.Alert) error {
	n.calls = append(n.calls, alert)
	return nil
}

func TestParseConditionSplitsOnComparisonOperators(t *testing.T) {
	c, err := ParseCondition("${monitor:btc} >= 50000")
	require.NoError(t, err)
	assert.Equal(t, "${monitor:btc}", c.Left)
	assert.Equal(t, ">=", c.Operator)
	assert.Equal(t, "50000", c.Right)
}

func TestParseConditionRejectsMissingOperator(t *testing.T) {
	_, err := ParseCondition("${monitor:btc} 50000")
	assert.Error(t, err)
}

func TestConditionEvaluateTrue(t *testing.T) {
	c, err := ParseCondition("${monitor:btc} > 100")
	require.NoError(t, err)
	ev := mapEvaluator{"${monitor:btc}": floatPtr(150), "100": floatPtr(100)}

	result, triggerVal, err := c.Evaluate(ev)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, *result)
	require.NotNil(t, triggerVal)
	assert.Equal(t, 150.0, *triggerVal)
}

func TestConditionEvaluateUnresolvedYieldsNilResult(t *testing.T) {
	c, err := ParseCondition("${monitor:missing} > 100")
	require.NoError(t, err)
	ev := mapEvaluator{"100": floatPtr(100)}

	result, _, err := c.Evaluate(ev)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEngineDispatchesOnTriggerAndRespectsCooldown(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ev := mapEvaluator{"${monitor:btc}": floatPtr(150), "100": floatPtr(100)}
	n := &recordingNotifier{}
	e := New(db, ev, n, zerolog.Nop())

	rule, err := e.CreateRule(domain.AlertRule{Name: "btc high", Condition: "${monitor:btc} > 100", Level: domain.LevelHigh, Enabled: true, CooldownS: 300})
	require.NoError(t, err)

	notified, err := e.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{rule.ID}, notified)
	assert.Len(t, n.calls, 1)

	notified2, err := e.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notified2)
	assert.Len(t, n.calls, 1)
}

func TestEngineResolvesWhenConditionStopsHolding(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ev := mapEvaluator{"${monitor:btc}": floatPtr(150), "100": floatPtr(100)}
	n := &recordingNotifier{}
	e := New(db, ev, n, zerolog.Nop())

	rule, err := e.CreateRule(domain.AlertRule{Name: "btc high", Condition: "${monitor:btc} > 100", Level: domain.LevelHigh, Enabled: true, CooldownS: 0})
	require.NoError(t, err)

	_, err = e.CheckAll(context.Background())
	require.NoError(t, err)

	state, err := e.activeState(rule.ID)
	require.NoError(t, err)
	require.NotNil(t, state)

	ev["${monitor:btc}"] = floatPtr(50)
	_, err = e.CheckAll(context.Background())
	require.NoError(t, err)

	state, err = e.activeState(rule.ID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

type fakeClock struct {
	monitors map[string]domain.Monitor
	computed map[string]time.Time
}

func (c *fakeClock) Get(id string) (domain.Monitor, error) {
	m, ok := c.monitors[id]
	if !ok {
		return domain.Monitor{}, assertNotFound()
	}
	return m, nil
}

func (c *fakeClock) LastComputedAt(id string) (*time.Time, error) {
	t, ok := c.computed[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func assertNotFound() error {
	return notFoundErr{}
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

func TestHeartbeatCheckerFiresWhenStale(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	n := &recordingNotifier{}
	e := New(db, mapEvaluator{}, n, zerolog.Nop())
	rule, err := e.CreateRule(domain.AlertRule{
		Name: "btc heartbeat", Condition: "${monitor:btc} > 0", Level: domain.LevelMedium,
		Enabled: true, CooldownS: 60, HeartbeatEnabled: true, HeartbeatIntervalS: 30,
	})
	require.NoError(t, err)

	clock := &fakeClock{
		monitors: map[string]domain.Monitor{"btc": {ID: "btc", Name: "BTC APY", Enabled: true}},
		computed: map[string]time.Time{"btc": time.Now().Add(-2 * time.Minute)},
	}
	hc := NewHeartbeatChecker(e, clock, zerolog.Nop())

	fired, err := hc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{rule.ID}, fired)
	require.Len(t, n.calls, 1)
}

func TestHeartbeatCheckerResolvesWhenFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	n := &recordingNotifier{}
	e := New(db, mapEvaluator{}, n, zerolog.Nop())
	_, err := e.CreateRule(domain.AlertRule{
		Name: "btc heartbeat", Condition: "${monitor:btc} > 0", Level: domain.LevelMedium,
		Enabled: true, CooldownS: 60, HeartbeatEnabled: true, HeartbeatIntervalS: 300,
	})
	require.NoError(t, err)

	clock := &fakeClock{
		monitors: map[string]domain.Monitor{"btc": {ID: "btc", Name: "BTC APY", Enabled: true}},
		computed: map[string]time.Time{"btc": time.Now()},
	}
	hc := NewHeartbeatChecker(e, clock, zerolog.Nop())

	fired, err := hc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Empty(t, n.calls)
}
