// Package store implements the append-only time-series persistence of
// §4.C: every Sample ever observed, indexed by (source_id, timestamp),
// queryable by range, by latest-per-source, and by cross-source
// summary stats.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/domain"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// Store is the single append-only table of Samples. It is safe for
// concurrent use by many readers and many single-row writers; the
// underlying sqlite connection serializes writes.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New wraps an existing *sql.DB as a Store.
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "store").Logger()}
}

// FundingSourceID returns the canonical source_id a funding-rate
// adapter writes its samples under, e.g. "lighter_funding_BTC".
func FundingSourceID(exchange, symbol string) string {
	return fmt.Sprintf("%s_funding_%s", strings.ToLower(exchange), strings.ToUpper(symbol))
}

// SpotSourceID returns the canonical source_id a spot-price adapter
// writes its samples under, e.g. "binance_spot_BTC".
func SpotSourceID(exchange, symbol string) string {
	return fmt.Sprintf("%s_spot_%s", strings.ToLower(exchange), strings.ToUpper(symbol))
}

// AccountValueSourceID returns the source_id an account adapter writes
// its total account value under.
func AccountValueSourceID(label string) string {
	return fmt.Sprintf("account_%s_value", label)
}

// AccountPositionSourceID returns the source_id an account adapter
// writes a single symbol's signed position size under.
func AccountPositionSourceID(label, symbol string) string {
	return fmt.Sprintf("account_%s_%s_position", label, strings.ToUpper(symbol))
}

// Insert appends one Sample. Samples are immutable once persisted;
// there is no Update.
func (s *Store) Insert(sample domain.Sample) (domain.Sample, error) {
	now := time.Now().UTC()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	if sample.ReceivedAt.IsZero() {
		sample.ReceivedAt = now
	}

	res, err := s.db.Exec(`
		INSERT INTO samples (source_id, display_name, value, text, unit, decimal_places, timestamp, received_at, is_change, previous_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sample.SourceID, sample.DisplayName, sample.Value, sample.Text, sample.Unit, sample.DecimalPlaces,
		sample.Timestamp.Format(timeLayout), sample.ReceivedAt.Format(timeLayout), boolToInt(sample.IsChange), sample.PreviousValue,
	)
	if err != nil {
		return domain.Sample{}, apperror.Wrap(apperror.KindStoreUnavailable, "insert sample", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Sample{}, apperror.Wrap(apperror.KindStoreUnavailable, "get inserted id", err)
	}
	sample.ID = id
	return sample, nil
}

// orderableColumns whitelists the columns §6's `order_by` query param
// may name, so it can be interpolated into the query directly instead
// of passed as a bind parameter (which SQL doesn't allow for an
// identifier).
var orderableColumns = map[string]string{
	"timestamp": "timestamp",
	"value":     "value",
	"id":        "id",
}

// ByRange returns samples ordered by timestamp descending, optionally
// filtered by source_id and a [start, end] window, paginated by
// limit/offset.
func (s *Store) ByRange(sourceID string, start, end time.Time, limit, offset int) ([]domain.Sample, error) {
	return s.ByRangeOrdered(sourceID, start, end, limit, offset, "timestamp", "desc")
}

// ByRangeOrdered is ByRange with an explicit sort column/direction,
// used by the /data route's order_by/order_dir params. Unknown columns
// fall back to timestamp; unknown directions fall back to descending.
func (s *Store) ByRangeOrdered(sourceID string, start, end time.Time, limit, offset int, orderBy, orderDir string) ([]domain.Sample, error) {
	col, ok := orderableColumns[orderBy]
	if !ok {
		col = "timestamp"
	}
	dir := "DESC"
	if strings.EqualFold(orderDir, "asc") {
		dir = "ASC"
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, source_id, display_name, value, text, unit, decimal_places, timestamp, received_at, is_change, previous_value FROM samples WHERE 1=1`)
	args := []interface{}{}

	if sourceID != "" {
		sb.WriteString(" AND source_id = ?")
		args = append(args, sourceID)
	}
	if !start.IsZero() {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, start.Format(timeLayout))
	}
	if !end.IsZero() {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, end.Format(timeLayout))
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s", col, dir)
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
		if offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, offset)
		}
	}

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "query by range", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// Latest returns the single most recent Sample for source_id, or nil
// if none exists.
func (s *Store) Latest(sourceID string) (*domain.Sample, error) {
	row := s.db.QueryRow(`
		SELECT id, source_id, display_name, value, text, unit, decimal_places, timestamp, received_at, is_change, previous_value
		FROM samples WHERE source_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1
	`, sourceID)

	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "query latest", err)
	}
	return sample, nil
}

// SummaryAll returns, for every distinct source_id, the aggregate
// stats §4.C names: count, min, max, mean, change_count, latest.
func (s *Store) SummaryAll() ([]domain.SourceSummary, error) {
	rows, err := s.db.Query(`SELECT DISTINCT source_id FROM samples`)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "list source ids", err)
	}
	var sourceIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperror.Wrap(apperror.KindStoreUnavailable, "scan source id", err)
		}
		sourceIDs = append(sourceIDs, id)
	}
	rows.Close()

	summaries := make([]domain.SourceSummary, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		sum, err := s.summaryFor(id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func (s *Store) summaryFor(sourceID string) (domain.SourceSummary, error) {
	valRows, err := s.db.Query(`SELECT value, is_change FROM samples WHERE source_id = ? AND value IS NOT NULL`, sourceID)
	if err != nil {
		return domain.SourceSummary{}, apperror.Wrap(apperror.KindStoreUnavailable, "query values for summary", err)
	}
	var values []float64
	changeCount := 0
	for valRows.Next() {
		var v float64
		var isChange int
		if err := valRows.Scan(&v, &isChange); err != nil {
			valRows.Close()
			return domain.SourceSummary{}, apperror.Wrap(apperror.KindStoreUnavailable, "scan summary row", err)
		}
		values = append(values, v)
		if isChange != 0 {
			changeCount++
		}
	}
	valRows.Close()

	var countRow int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM samples WHERE source_id = ?`, sourceID).Scan(&countRow); err != nil {
		return domain.SourceSummary{}, apperror.Wrap(apperror.KindStoreUnavailable, "count samples", err)
	}

	latest, err := s.Latest(sourceID)
	if err != nil {
		return domain.SourceSummary{}, err
	}

	sum := domain.SourceSummary{SourceID: sourceID, Count: countRow, ChangeCount: changeCount, Latest: latest}
	if len(values) > 0 {
		mn, mx := values[0], values[0]
		for _, v := range values {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		sum.Min = mn
		sum.Max = mx
		sum.Mean = stat.Mean(values, nil)
	}
	return sum, nil
}

// DeleteOlderThan deletes samples with timestamp < cutoff, optionally
// further restricted to sourceIDs (used by the Downsampler to exclude
// the "important" pairs from aggressive pruning). An empty sourceIDs
// deletes across all sources.
func (s *Store) DeleteOlderThan(cutoff time.Time, sourceIDs []string) (int64, error) {
	var res sql.Result
	var err error
	if len(sourceIDs) == 0 {
		res, err = s.db.Exec(`DELETE FROM samples WHERE timestamp < ?`, cutoff.Format(timeLayout))
	} else {
		placeholders := strings.Repeat("?,", len(sourceIDs))
		placeholders = strings.TrimSuffix(placeholders, ",")
		args := make([]interface{}, 0, len(sourceIDs)+1)
		args = append(args, cutoff.Format(timeLayout))
		for _, id := range sourceIDs {
			args = append(args, id)
		}
		res, err = s.db.Exec(fmt.Sprintf(`DELETE FROM samples WHERE timestamp < ? AND source_id IN (%s)`, placeholders), args...)
	}
	if err != nil {
		return 0, apperror.Wrap(apperror.KindStoreUnavailable, "delete older than", err)
	}
	return res.RowsAffected()
}

// DeleteBucketedKeepFirst implements the Downsampler's "1 per
// interval" rule: for rows in [windowStart, windowEnd) matching
// sourceIDs (or all sources if empty), group by
// floor(timestamp/intervalSeconds) and delete every row in a bucket
// except the one with the smallest id.
func (s *Store) DeleteBucketedKeepFirst(windowStart, windowEnd time.Time, intervalSeconds int, sourceIDs []string) (int64, error) {
	args := []interface{}{windowStart.Format(timeLayout), windowEnd.Format(timeLayout)}
	sourceFilter := ""
	if len(sourceIDs) > 0 {
		placeholders := strings.Repeat("?,", len(sourceIDs))
		placeholders = strings.TrimSuffix(placeholders, ",")
		sourceFilter = fmt.Sprintf(" AND source_id IN (%s)", placeholders)
		for _, id := range sourceIDs {
			args = append(args, id)
		}
	}

	query := fmt.Sprintf(`
		DELETE FROM samples
		WHERE id IN (
			SELECT s.id FROM samples s
			WHERE s.timestamp >= ? AND s.timestamp < ?%s
			AND s.id NOT IN (
				SELECT MIN(s2.id) FROM samples s2
				WHERE s2.timestamp >= ? AND s2.timestamp < ?%s
				GROUP BY s2.source_id, CAST(strftime('%%s', s2.timestamp) AS INTEGER) / ?
			)
		)
	`, sourceFilter, sourceFilter)

	fullArgs := append([]interface{}{}, args...)
	fullArgs = append(fullArgs, windowStart.Format(timeLayout), windowEnd.Format(timeLayout))
	if len(sourceIDs) > 0 {
		for _, id := range sourceIDs {
			fullArgs = append(fullArgs, id)
		}
	}
	fullArgs = append(fullArgs, intervalSeconds)

	res, err := s.db.Exec(query, fullArgs...)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindStoreUnavailable, "bucketed delete", err)
	}
	return res.RowsAffected()
}

// DeleteMonitorValuesOlderThan mirrors DeleteOlderThan for the
// monitor_values table, which the Downsampler prunes under the same
// long-term retention policy as funding rates.
func (s *Store) DeleteMonitorValuesOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM monitor_values WHERE computed_at < ?`, cutoff.Format(timeLayout))
	if err != nil {
		return 0, apperror.Wrap(apperror.KindStoreUnavailable, "delete old monitor values", err)
	}
	return res.RowsAffected()
}

// DeleteMonitorValuesBucketedKeepFirst mirrors DeleteBucketedKeepFirst
// for the monitor_values table, bucketing by monitor_id instead of
// source_id.
func (s *Store) DeleteMonitorValuesBucketedKeepFirst(windowStart, windowEnd time.Time, intervalSeconds int) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM monitor_values
		WHERE id IN (
			SELECT mv.id FROM monitor_values mv
			WHERE mv.computed_at >= ? AND mv.computed_at < ?
			AND mv.id NOT IN (
				SELECT MIN(mv2.id) FROM monitor_values mv2
				WHERE mv2.computed_at >= ? AND mv2.computed_at < ?
				GROUP BY mv2.monitor_id, CAST(strftime('%s', mv2.computed_at) AS INTEGER) / ?
			)
		)
	`, windowStart.Format(timeLayout), windowEnd.Format(timeLayout),
		windowStart.Format(timeLayout), windowEnd.Format(timeLayout), intervalSeconds)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindStoreUnavailable, "bucketed delete monitor values", err)
	}
	return res.RowsAffected()
}

// DistinctSourceIDsLike returns every distinct source_id matching a
// SQL LIKE pattern, used by the Downsampler to select e.g. every
// "*_funding_*" source without hard-coding each exchange.
func (s *Store) DistinctSourceIDsLike(pattern string) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT source_id FROM samples WHERE source_id LIKE ?`, pattern)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "distinct source ids", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Wrap(apperror.KindStoreUnavailable, "scan source id", err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Vacuum reclaims freed pages after a bulk delete.
func (s *Store) Vacuum() error {
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return apperror.Wrap(apperror.KindStoreUnavailable, "vacuum", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSample(r rowScanner) (*domain.Sample, error) {
	var sample domain.Sample
	var ts, recvAt string
	var isChange int
	if err := r.Scan(
		&sample.ID, &sample.SourceID, &sample.DisplayName, &sample.Value, &sample.Text, &sample.Unit,
		&sample.DecimalPlaces, &ts, &recvAt, &isChange, &sample.PreviousValue,
	); err != nil {
		return nil, err
	}
	sample.IsChange = isChange != 0
	sample.Timestamp, _ = parseTimestamp(ts)
	sample.ReceivedAt, _ = parseTimestamp(recvAt)
	return &sample, nil
}

func scanSamples(rows *sql.Rows) ([]domain.Sample, error) {
	var out []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindStoreUnavailable, "scan sample row", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "iterate sample rows", err)
	}
	return out, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	// sqlite driver may round-trip as RFC3339 or space-separated.
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05.999999999-07:00", s)
}
