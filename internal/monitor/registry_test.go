package monitor

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/domain"
	"github.com/aristath/ratewatch/internal/store"
)

const schemaForTest = `
CREATE TABLE samples (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id       TEXT NOT NULL,
	display_name    TEXT NOT NULL DEFAULT '',
	value           REAL,
	text            TEXT NOT NULL DEFAULT '',
	unit            TEXT NOT NULL DEFAULT '',
	decimal_places  INTEGER NOT NULL DEFAULT 2,
	timestamp       DATETIME NOT NULL,
	received_at     DATETIME NOT NULL,
	is_change       INTEGER NOT NULL DEFAULT 0,
	previous_value  REAL
);
CREATE INDEX idx_samples_source_ts ON samples(source_id, timestamp);

CREATE TABLE monitors (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	unit                 TEXT NOT NULL DEFAULT '',
	color                TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	decimal_places       INTEGER NOT NULL DEFAULT 2,
	formula              TEXT NOT NULL,
	enabled              INTEGER NOT NULL DEFAULT 1,
	heartbeat_interval_s INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE monitor_values (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id   TEXT NOT NULL,
	value        REAL NOT NULL,
	computed_at  DATETIME NOT NULL,
	dependencies TEXT NOT NULL DEFAULT '[]'
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

func TestCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	m, err := r.Create(domain.Monitor{Name: "btc apy spread", Formula: "1 + 1", Enabled: true})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)

	got, err := r.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "btc apy spread", got.Name)
	assert.True(t, got.Enabled)
}

func TestCreateRejectsCyclicFormula(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	_, err := r.Create(domain.Monitor{ID: "a", Name: "a", Formula: "${monitor:a}", Enabled: true})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindCycleDetected))
}

func TestUpdateRejectsCyclicFormulaAcrossMonitors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	_, err := r.Create(domain.Monitor{ID: "a", Name: "a", Formula: "1", Enabled: true})
	require.NoError(t, err)
	_, err = r.Create(domain.Monitor{ID: "b", Name: "b", Formula: "${monitor:a}", Enabled: true})
	require.NoError(t, err)

	_, err = r.Update(domain.Monitor{ID: "a", Name: "a", Formula: "${monitor:b}", Enabled: true})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindCycleDetected))
}

func TestComputeWritesValueOnFirstRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	m, err := r.Create(domain.Monitor{Name: "const", Formula: "2 + 2", Enabled: true})
	require.NoError(t, err)

	value, changed, err := r.Compute(m.ID)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, 4.0, *value)
	assert.True(t, changed)
}

func TestComputeSkipsWriteWhenValueUnchanged(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	m, err := r.Create(domain.Monitor{Name: "const", Formula: "2 + 2", Enabled: true})
	require.NoError(t, err)

	_, changed1, err := r.Compute(m.ID)
	require.NoError(t, err)
	require.True(t, changed1)

	_, changed2, err := r.Compute(m.ID)
	require.NoError(t, err)
	assert.False(t, changed2)
}

func TestComputeReturnsNilForUnresolvedWebhookDependency(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	m, err := r.Create(domain.Monitor{Name: "depends on webhook", Formula: "${webhook:missing} * 2", Enabled: true})
	require.NoError(t, err)

	value, changed, err := r.Compute(m.ID)
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.False(t, changed)
}

func TestResolveMonitorRecursesThroughAnotherMonitor(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	_, err := r.Create(domain.Monitor{ID: "base", Name: "base", Formula: "10", Enabled: true})
	require.NoError(t, err)
	derived, err := r.Create(domain.Monitor{ID: "derived", Name: "derived", Formula: "${monitor:base} * 2", Enabled: true})
	require.NoError(t, err)

	value, changed, err := r.Compute(derived.ID)
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, value)
	assert.Equal(t, 20.0, *value)
}

func TestResolveMonitorReturnsNilForDisabledDependency(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	_, err := r.Create(domain.Monitor{ID: "base", Name: "base", Formula: "10", Enabled: false})
	require.NoError(t, err)

	got, err := r.ResolveMonitor("base")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecomputeAllOnlyReturnsChangedMonitors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	_, err := r.Create(domain.Monitor{ID: "x", Name: "x", Formula: "1 + 1", Enabled: true})
	require.NoError(t, err)
	_, err = r.Create(domain.Monitor{ID: "y", Name: "y", Formula: "2 + 2", Enabled: true})
	require.NoError(t, err)

	first, err := r.RecomputeAll(true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, first)

	second, err := r.RecomputeAll(true)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRecomputeDependentsOnlyTouchesReferencingMonitors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	st := store.New(db, zerolog.Nop())
	r := New(db, st, zerolog.Nop())

	_, err := st.Insert(domain.Sample{SourceID: "pricing", Value: floatPtr(100), Timestamp: time.Now()})
	require.NoError(t, err)

	_, err = r.Create(domain.Monitor{ID: "watches", Name: "watches", Formula: "${webhook:pricing} * 2", Enabled: true})
	require.NoError(t, err)
	_, err = r.Create(domain.Monitor{ID: "unrelated", Name: "unrelated", Formula: "42", Enabled: true})
	require.NoError(t, err)

	changed, err := r.RecomputeDependents("webhook:pricing")
	require.NoError(t, err)
	assert.Equal(t, []string{"watches"}, changed)

	value, err := r.LatestValue("watches")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, 200.0, *value)
}

func TestListEnabledOnlyFilter(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	_, err := r.Create(domain.Monitor{ID: "on", Name: "on", Formula: "1", Enabled: true})
	require.NoError(t, err)
	_, err = r.Create(domain.Monitor{ID: "off", Name: "off", Formula: "1", Enabled: false})
	require.NoError(t, err)

	all, err := r.List(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabledOnly, err := r.List(true)
	require.NoError(t, err)
	require.Len(t, enabledOnly, 1)
	assert.Equal(t, "on", enabledOnly[0].ID)
}

func TestDeleteRemovesMonitor(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	m, err := r.Create(domain.Monitor{Name: "temp", Formula: "1", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, r.Delete(m.ID))

	_, err = r.Get(m.ID)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

// TestConcurrentEvaluateThroughMonitorReferences exercises the same
// shape as the alert tick, heartbeat tick and recompute sweep running
// concurrently against one Registry: many goroutines evaluating a
// formula that recurses through `${monitor:X}` at the same time. It
// exists to catch a recursion guard stored on Registry itself (which
// would trip `go test -race` with a concurrent map read/write here).
func TestConcurrentEvaluateThroughMonitorReferences(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	r := New(db, store.New(db, zerolog.Nop()), zerolog.Nop())
	_, err := r.Create(domain.Monitor{ID: "base", Name: "base", Formula: "10", Enabled: true})
	require.NoError(t, err)
	_, err = r.Create(domain.Monitor{ID: "derived", Name: "derived", Formula: "${monitor:base} * 2", Enabled: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := r.Evaluate("${monitor:derived} + ${monitor:base}")
			if err != nil {
				errs <- err
				return
			}
			if value == nil || *value != 30.0 {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent evaluate failed: %v", err)
	}
}
