// Package downsampler implements §4.J: the periodic retention/backup
// pipeline that keeps the append-only Store from growing unbounded
// while preserving long-term trend data at decreasing resolution.
package downsampler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/store"
)

// importantFundingPairs get the long-term retention policy (funding
// rates on the venue the dashboard actually trades against); every
// other funding pair is pruned under the aggressive policy. Kept as a
// package var rather than inlined in the policy tables so a future
// config flag has a single place to touch.
var importantFundingPairs = []string{"lighter_funding_BTC", "lighter_funding_ETH", "lighter_funding_SOL"}

// tier is one band of a retention policy: rows in [now-sinceAgo,
// now-untilAgo) get bucketed to one sample per intervalSeconds; a
// sinceAgo of zero means "from the beginning of time". deleteAll drops
// the entire band instead of downsampling it.
type tier struct {
	name            string
	sinceAgo        time.Duration // zero means unbounded (beginning of time)
	untilAgo        time.Duration
	intervalSeconds int
	deleteAll       bool
}

// longTermPolicy: full precision for 24h, then progressively coarser.
// Applied to webhook sources, important funding pairs, and
// monitor_values.
var longTermPolicy = []tier{
	{name: "1-7 days", sinceAgo: 7 * 24 * time.Hour, untilAgo: 24 * time.Hour, intervalSeconds: 5 * 60},
	{name: "7-30 days", sinceAgo: 30 * 24 * time.Hour, untilAgo: 7 * 24 * time.Hour, intervalSeconds: 10 * 60},
	{name: "30+ days", sinceAgo: 0, untilAgo: 30 * 24 * time.Hour, intervalSeconds: 15 * 60},
}

// spotPolicy: spot prices move fast and are cheap to refetch, so
// there is no long tail — 48h then gone.
var spotPolicy = []tier{
	{name: "1-48 hours", sinceAgo: 48 * time.Hour, untilAgo: time.Hour, intervalSeconds: 5 * 60},
	{name: "48+ hours", sinceAgo: 0, untilAgo: 48 * time.Hour, deleteAll: true},
}

// aggressivePolicy: non-important funding pairs are kept only long
// enough to chart a recent trend.
var aggressivePolicy = []tier{
	{name: "1-8 hours", sinceAgo: 8 * time.Hour, untilAgo: time.Hour, intervalSeconds: 5 * 60},
	{name: "8+ hours", sinceAgo: 0, untilAgo: 8 * time.Hour, deleteAll: true},
}

// TableStats reports how many rows a policy pass removed from one
// logical group of sources.
type TableStats struct {
	Name    string
	Deleted int64
}

// Downsampler runs the full retention pipeline: snapshot the database
// file size, back it up, apply each policy tier, VACUUM if anything
// was deleted, then rotate old backups. Every step is grounded on
// database_downsampler.py's run() sequence, generalized from that
// system's per-model tables onto this one's unified samples table
// (policy tiers select rows by source_id pattern instead of by model).
type Downsampler struct {
	store       *store.Store
	dbPath      string
	keepBackups int
	log         zerolog.Logger
}

func New(st *store.Store, dbPath string, keepBackups int, log zerolog.Logger) *Downsampler {
	return &Downsampler{store: st, dbPath: dbPath, keepBackups: keepBackups, log: log.With().Str("component", "downsampler").Logger()}
}

// Run executes one full downsampling pass.
func (d *Downsampler) Run() error {
	d.log.Info().Msg("starting database downsampling pass")

	initialSize, sizeErr := d.fileSize()
	if sizeErr != nil {
		d.log.Warn().Err(sizeErr).Msg("could not stat database file, proceeding without size reporting")
	}

	backupPath, err := d.createBackup()
	if err != nil {
		return apperror.Wrap(apperror.KindStoreUnavailable, "create backup before downsampling, aborting", err)
	}

	var stats []TableStats
	now := time.Now().UTC()

	spotSources, err := d.store.DistinctSourceIDsLike("%_spot_%")
	if err != nil {
		return err
	}
	if s, err := d.applyPolicy(now, "spot prices", spotSources, spotPolicy); err != nil {
		return err
	} else if s != nil {
		stats = append(stats, *s)
	}

	fundingSources, err := d.store.DistinctSourceIDsLike("%_funding_%")
	if err != nil {
		return err
	}
	important, nonImportant := splitImportant(fundingSources)

	if s, err := d.applyPolicy(now, "funding rates (important)", important, longTermPolicy); err != nil {
		return err
	} else if s != nil {
		stats = append(stats, *s)
	}
	if s, err := d.applyPolicy(now, "funding rates (other)", nonImportant, aggressivePolicy); err != nil {
		return err
	} else if s != nil {
		stats = append(stats, *s)
	}

	webhookSources, err := d.webhookSourceIDs()
	if err != nil {
		return err
	}
	if s, err := d.applyPolicy(now, "webhook data", webhookSources, longTermPolicy); err != nil {
		return err
	} else if s != nil {
		stats = append(stats, *s)
	}

	mvDeleted, err := d.applyMonitorValuePolicy(now)
	if err != nil {
		return err
	}
	stats = append(stats, TableStats{Name: "monitor_values", Deleted: mvDeleted})

	var totalDeleted int64
	for _, s := range stats {
		totalDeleted += s.Deleted
		if s.Deleted > 0 {
			d.log.Info().Str("table", s.Name).Int64("deleted", s.Deleted).Msg("downsampled")
		}
	}

	if totalDeleted == 0 {
		d.log.Info().Msg("no data to downsample")
		if backupPath != "" {
			if err := os.Remove(backupPath); err != nil {
				d.log.Warn().Err(err).Msg("failed to remove unnecessary backup")
			}
		}
		return nil
	}

	if err := d.store.Vacuum(); err != nil {
		return err
	}

	if finalSize, err := d.fileSize(); err == nil && sizeErr == nil {
		d.log.Info().
			Float64("initial_mb", initialSize).
			Float64("final_mb", finalSize).
			Float64("saved_mb", initialSize-finalSize).
			Msg("database optimized")
	}

	d.cleanupOldBackups()
	return nil
}

// applyPolicy downsamples sourceIDs under policy, reporting how many
// rows the pass deleted. A nil group (sourceIDs empty) skips
// entirely and returns nil stats, matching the original's "empty,
// skipping" behavior per table.
func (d *Downsampler) applyPolicy(now time.Time, name string, sourceIDs []string, policy []tier) (*TableStats, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	var deleted int64
	for _, t := range policy {
		since := boundedAgo(now, t.sinceAgo)
		until := now.Add(-t.untilAgo)

		if t.deleteAll {
			n, err := d.store.DeleteOlderThan(until, sourceIDs)
			if err != nil {
				return nil, err
			}
			deleted += n
			continue
		}

		n, err := d.store.DeleteBucketedKeepFirst(since, until, t.intervalSeconds, sourceIDs)
		if err != nil {
			return nil, err
		}
		deleted += n
	}

	return &TableStats{Name: name, Deleted: deleted}, nil
}

func (d *Downsampler) applyMonitorValuePolicy(now time.Time) (int64, error) {
	var deleted int64
	for _, t := range longTermPolicy {
		since := boundedAgo(now, t.sinceAgo)
		until := now.Add(-t.untilAgo)

		if t.deleteAll {
			n, err := d.store.DeleteMonitorValuesOlderThan(until)
			if err != nil {
				return 0, err
			}
			deleted += n
			continue
		}

		n, err := d.store.DeleteMonitorValuesBucketedKeepFirst(since, until, t.intervalSeconds)
		if err != nil {
			return 0, err
		}
		deleted += n
	}
	return deleted, nil
}

// boundedAgo returns the beginning of time (a very old timestamp
// rather than time.Time{}, to keep SQLite's text comparison valid)
// when sinceAgo is the policy's "unbounded" sentinel (zero).
func boundedAgo(now time.Time, sinceAgo time.Duration) time.Time {
	if sinceAgo == 0 {
		return time.Unix(0, 0).UTC()
	}
	return now.Add(-sinceAgo)
}

// splitImportant partitions fundingSources into the hard-coded
// long-term list and everything else.
func splitImportant(fundingSources []string) (important, rest []string) {
	importantSet := make(map[string]bool, len(importantFundingPairs))
	for _, id := range importantFundingPairs {
		importantSet[id] = true
	}
	for _, id := range fundingSources {
		if importantSet[id] {
			important = append(important, id)
		} else {
			rest = append(rest, id)
		}
	}
	return important, rest
}

// webhookSourceIDs returns every source_id that is neither a funding
// nor a spot adapter source (i.e. webhook and account sources), since
// those follow the same long-term policy.
func (d *Downsampler) webhookSourceIDs() ([]string, error) {
	all, err := d.store.DistinctSourceIDsLike("%")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range all {
		if strings.Contains(id, "_funding_") || strings.Contains(id, "_spot_") {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (d *Downsampler) fileSize() (float64, error) {
	info, err := os.Stat(d.dbPath)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / 1024 / 1024, nil
}

func (d *Downsampler) createBackup() (string, error) {
	data, err := os.ReadFile(d.dbPath)
	if err != nil {
		return "", err
	}
	backupPath := fmt.Sprintf("%s.backup-%s", d.dbPath, time.Now().UTC().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", err
	}
	d.log.Info().Str("backup", filepath.Base(backupPath)).Msg("backup created")
	return backupPath, nil
}

func (d *Downsampler) cleanupOldBackups() {
	matches, err := filepath.Glob(d.dbPath + ".backup-*")
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to list backups for rotation")
		return
	}
	if len(matches) <= d.keepBackups {
		return
	}

	sort.Slice(matches, func(i, j int) bool {
		iInfo, iErr := os.Stat(matches[i])
		jInfo, jErr := os.Stat(matches[j])
		if iErr != nil || jErr != nil {
			return matches[i] < matches[j]
		}
		return iInfo.ModTime().Before(jInfo.ModTime())
	})

	toRemove := matches[:len(matches)-d.keepBackups]
	for _, path := range toRemove {
		if err := os.Remove(path); err != nil {
			d.log.Warn().Err(err).Str("backup", path).Msg("failed to remove old backup")
			continue
		}
		d.log.Info().Str("backup", filepath.Base(path)).Msg("removed old backup")
	}
}
