// Package engine is the composition root §9's "replace global mutable
// singletons" redesign flag calls for: it owns one instance of every
// stateful component (Store, Monitor Registry, Alert Engine, Heartbeat
// Checker, Snapshot Cache, Downsampler, Notifier, and the poller
// fleet) and wires them together once, at startup, instead of each
// package reaching for a shared package-level variable.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/adapters"
	"github.com/aristath/ratewatch/internal/alert"
	"github.com/aristath/ratewatch/internal/config"
	"github.com/aristath/ratewatch/internal/domain"
	"github.com/aristath/ratewatch/internal/downsampler"
	"github.com/aristath/ratewatch/internal/monitor"
	"github.com/aristath/ratewatch/internal/notify"
	"github.com/aristath/ratewatch/internal/snapshotcache"
	"github.com/aristath/ratewatch/internal/store"
	"github.com/aristath/ratewatch/internal/webhook"
)

// fundingPollInterval and spotPollInterval are the §4.B default tick
// rates for rate-producing adapters.
const (
	fundingPollInterval = 300 * time.Second
	spotPollInterval    = 30 * time.Second
	accountPollInterval = 60 * time.Second
	hedgePollInterval   = 60 * time.Second
)

// Engine holds every long-lived component of the hub, built once by
// New and handed by reference to the HTTP server and the scheduled
// jobs — nothing here is a package-level variable.
type Engine struct {
	DB          *sql.DB
	Store       *store.Store
	Monitors    *monitor.Registry
	Alerts      *alert.Engine
	Heartbeats  *alert.HeartbeatChecker
	Webhooks    *webhook.Processor
	SnapshotCache *snapshotcache.Cache
	Downsampler *downsampler.Downsampler
	Notifier    notify.Notifier

	pollers []runner
	log     zerolog.Logger
}

// runner is anything that blocks, looping until ctx is cancelled —
// both poller.Poller and poller.TaskPoller satisfy this.
type runner interface {
	Run(ctx context.Context)
}

// New builds every component and wires them together: Store first,
// then the Monitor Registry (a formula.Resolver over the Store), then
// the Alert Engine and Heartbeat Checker (both evaluate formulas
// through the Registry), then the webhook Processor, the Snapshot
// Cache over the funding adapter fleet, the Downsampler, and finally
// the poller fleet itself.
func New(cfg *config.Config, db *sql.DB, log zerolog.Logger) *Engine {
	st := store.New(db, log)
	notifier := buildNotifier(cfg, log)
	monitors := monitor.New(db, st, log)
	alerts := alert.New(db, monitors, notifier, log)
	heartbeats := alert.NewHeartbeatChecker(alerts, monitors, log)
	webhooks := webhook.NewProcessor(st, monitors, log)
	cache := buildSnapshotCache(log)
	ds := downsampler.New(st, cfg.DatabasePath, cfg.DownsamplerBackupsToKeep, log)

	e := &Engine{
		DB:            db,
		Store:         st,
		Monitors:      monitors,
		Alerts:        alerts,
		Heartbeats:    heartbeats,
		Webhooks:      webhooks,
		SnapshotCache: cache,
		Downsampler:   ds,
		Notifier:      notifier,
		log:           log.With().Str("component", "engine").Logger(),
	}
	e.pollers = buildPollers(cfg, st, log)
	return e
}

// buildNotifier wires a Pushover target from config if credentials are
// present, falling back to the structured-log notifier (§4.K's
// default/test double) otherwise so notification dispatch never nils
// out in a dev environment.
func buildNotifier(cfg *config.Config, log zerolog.Logger) notify.Notifier {
	if cfg.PushoverUserKey == "" || cfg.PushoverAPIToken == "" {
		log.Warn().Msg("no pushover credentials configured, falling back to log notifier")
		return notify.NewLogNotifier(log)
	}

	minLevel := domain.AlertLevel(cfg.PushoverMinLevel)
	if !minLevel.Valid() {
		minLevel = domain.LevelLow
	}

	return notify.NewPushoverNotifier([]notify.PushoverTarget{
		{
			Name:     "default",
			UserKey:  cfg.PushoverUserKey,
			APIToken: cfg.PushoverAPIToken,
			MinLevel: minLevel,
		},
	}, log)
}

// fundingAdapters lists every venue's FundingAdapter, the set the
// Snapshot Cache composes its merged batch over (§4.D).
func fundingAdapters() []snapshotcache.FundingSource {
	return []snapshotcache.FundingSource{
		{Exchange: "binance", Adapter: adapters.NewBinanceAdapter()},
		{Exchange: "bybit", Adapter: adapters.NewBybitAdapter()},
		{Exchange: "okx", Adapter: adapters.NewOKXAdapter()},
		{Exchange: "backpack", Adapter: adapters.NewBackpackAdapter()},
		{Exchange: "aster", Adapter: adapters.NewAsterAdapter()},
		{Exchange: "hyperliquid", Adapter: adapters.NewHyperliquidAdapter()},
		{Exchange: "grvt", Adapter: adapters.NewGRVTAdapter()},
		{Exchange: "lighter", Adapter: adapters.NewLighterAdapter()},
	}
}

// buildSnapshotCache wires the cache over every funding adapter, using
// Binance's own spot-ticker listing as the has_binance_spot universe.
func buildSnapshotCache(log zerolog.Logger) *snapshotcache.Cache {
	binance := adapters.NewBinanceAdapter()
	spotUniverse := func(ctx context.Context) (map[string]bool, error) {
		rates, err := binance.FetchSpot(ctx)
		if err != nil {
			return nil, err
		}
		universe := make(map[string]bool, len(rates))
		for _, r := range rates {
			universe[r.Symbol] = true
		}
		return universe, nil
	}
	return snapshotcache.New(fundingAdapters(), spotUniverse, log)
}

// Start launches every poller's Run loop in its own goroutine; they
// run until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.log.Info().Int("pollers", len(e.pollers)).Msg("starting poller fleet")
	for _, p := range e.pollers {
		go p.Run(ctx)
	}
}
