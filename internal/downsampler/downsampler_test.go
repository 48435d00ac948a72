package downsampler

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

CREATE TABLE monitor_values (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id   TEXT NOT NULL,
	value        REAL NOT NULL,
	computed_at  DATETIME NOT NULL,
	dependencies TEXT NOT NULL DEFAULT '[]'
);
`

// setupTestDB opens a file-backed (not :memory:) sqlite database since
// the Downsampler needs a real path on disk to stat and back up.
func setupTestDB(t *testing.T) (*sql.DB, string) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaForTest)
	require.NoError(t, err)
	return db, path
}

func insertSample(t *testing.T, db *sql.DB, sourceID string, value float64, ts time.Time) {
	_, err := db.Exec(
		`INSERT INTO samples (source_id, value, timestamp, received_at) VALUES (?, ?, ?, ?)`,
		sourceID, value, ts.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"), ts.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	)
	require.NoError(t, err)
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestSplitImportantSeparatesKnownFundingPairs(t *testing.T) {
	important, rest := splitImportant([]string{
		"lighter_funding_BTC",
		"lighter_funding_ETH",
		"binance_funding_DOGE",
	})
	assert.Equal(t, []string{"lighter_funding_BTC", "lighter_funding_ETH"}, important)
	assert.Equal(t, []string{"binance_funding_DOGE"}, rest)
}

func TestRunDeletesStaleAggressiveFundingRates(t *testing.T) {
	db, path := setupTestDB(t)
	defer db.Close()

	st := store.New(db, zerolog.Nop())
	old := time.Now().UTC().Add(-30 * time.Hour)
	insertSample(t, db, "binance_funding_DOGE", 0.01, old)
	insertSample(t, db, "binance_funding_DOGE", 0.02, old.Add(time.Minute))

	d := New(st, path, 3, zerolog.Nop())
	require.NoError(t, d.Run())

	assert.Equal(t, 0, countRows(t, db, "samples"))
}

func TestRunKeepsImportantFundingRatesUnderLongTermPolicy(t *testing.T) {
	db, path := setupTestDB(t)
	defer db.Close()

	st := store.New(db, zerolog.Nop())
	recent := time.Now().UTC().Add(-time.Hour)
	insertSample(t, db, "lighter_funding_BTC", 0.01, recent)

	d := New(st, path, 3, zerolog.Nop())
	require.NoError(t, d.Run())

	assert.Equal(t, 1, countRows(t, db, "samples"))
}

func TestRunSkipsVacuumAndRemovesBackupWhenNothingDeleted(t *testing.T) {
	db, path := setupTestDB(t)
	defer db.Close()

	st := store.New(db, zerolog.Nop())
	recent := time.Now().UTC().Add(-time.Minute)
	insertSample(t, db, "webhook_pricing", 1.0, recent)

	d := New(st, path, 3, zerolog.Nop())
	require.NoError(t, d.Run())

	matches, err := filepath.Glob(path + ".backup-*")
	require.NoError(t, err)
	assert.Empty(t, matches, "backup should be removed when no rows were deleted")
}

func TestRunBucketsMonitorValuesInLongTail(t *testing.T) {
	db, path := setupTestDB(t)
	defer db.Close()

	st := store.New(db, zerolog.Nop())
	base := time.Now().UTC().Add(-40 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		_, err := db.Exec(
			`INSERT INTO monitor_values (monitor_id, value, computed_at) VALUES (?, ?, ?)`,
			"m1", float64(i), base.Add(time.Duration(i)*time.Minute).Format("2006-01-02T15:04:05.999999999Z07:00"),
		)
		require.NoError(t, err)
	}

	d := New(st, path, 3, zerolog.Nop())
	require.NoError(t, d.Run())

	assert.Less(t, countRows(t, db, "monitor_values"), 5)
}

func TestCleanupOldBackupsKeepsOnlyMostRecent(t *testing.T) {
	db, path := setupTestDB(t)
	defer db.Close()

	st := store.New(db, zerolog.Nop())
	d := New(st, path, 2, zerolog.Nop())

	for i := 0; i < 4; i++ {
		name := path + ".backup-2024010" + string(rune('0'+i))
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o600))
	}

	d.cleanupOldBackups()

	matches, err := filepath.Glob(path + ".backup-*")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestBoundedAgoUnboundedReturnsEpoch(t *testing.T) {
	got := boundedAgo(time.Now(), 0)
	assert.Equal(t, int64(0), got.Unix())
}
