package server

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ratewatch/internal/alert"
	"github.com/aristath/ratewatch/internal/config"
	"github.com/aristath/ratewatch/internal/database"
	"github.com/aristath/ratewatch/internal/downsampler"
	"github.com/aristath/ratewatch/internal/engine"
	"github.com/aristath/ratewatch/internal/monitor"
	"github.com/aristath/ratewatch/internal/notify"
	"github.com/aristath/ratewatch/internal/snapshotcache"
	"github.com/aristath/ratewatch/internal/store"
	"github.com/aristath/ratewatch/internal/webhook"
)

// setupTestDB spins up a file-backed sqlite database migrated with
// the real schema, the same way database.New/Migrate would at boot,
// so handler tests exercise the real store/monitor/alert SQL rather
// than a hand-rolled stand-in schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := t.TempDir() + "/ratewatch.db"

	db, err := database.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	t.Cleanup(func() { db.Close() })
	return db.Conn()
}

// testServer builds a Server wired to an in-memory-equivalent engine,
// bypassing engine.New's real network adapters so handler tests never
// touch the network: the Snapshot Cache is built with an empty source
// list, which makes Get's refresh a no-op fan-in over zero adapters.
func testServer(t *testing.T) *Server {
	t.Helper()
	db := setupTestDB(t)
	log := zerolog.Nop()

	cfg := &config.Config{
		DatabasePath: t.TempDir() + "/ratewatch.db",
		CORSOrigins:  []string{"*"},
	}

	st := store.New(db, log)
	monitors := monitor.New(db, st, log)
	notifier := notify.NewLogNotifier(log)
	alerts := alert.New(db, monitors, notifier, log)
	heartbeats := alert.NewHeartbeatChecker(alerts, monitors, log)
	webhooks := webhook.NewProcessor(st, monitors, log)
	cache := snapshotcache.New(nil, nil, log)
	ds := downsampler.New(st, cfg.DatabasePath, 3, log)

	eng := &engine.Engine{
		DB:            db,
		Store:         st,
		Monitors:      monitors,
		Alerts:        alerts,
		Heartbeats:    heartbeats,
		Webhooks:      webhooks,
		SnapshotCache: cache,
		Downsampler:   ds,
		Notifier:      notifier,
	}

	return New(Config{
		Port:    0,
		Log:     log,
		Engine:  eng,
		Config:  cfg,
		DevMode: true,
	})
}
