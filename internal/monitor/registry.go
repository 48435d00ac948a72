// Package monitor implements §4.F/G: CRUD over Monitors, the
// MonitorValue cache, and the periodic RecomputeAll safety-net sweep.
// Registry also implements formula.Resolver so `${monitor:X}`
// references recurse back through the same evaluation path.
package monitor

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/apperror"
	"github.com/aristath/ratewatch/internal/domain"
	"github.com/aristath/ratewatch/internal/formula"
	"github.com/aristath/ratewatch/internal/store"
)

// changeThreshold is the §4.E rule: a new MonitorValue row is only
// written when the computed value differs from the last cached value
// by more than this amount.
const changeThreshold = 1e-10

// Registry is the Monitor CRUD store plus the computed-value cache.
// It also resolves `${monitor:X}` references for the formula engine,
// recursively evaluating the referenced monitor's own formula.
type Registry struct {
	db    *sql.DB
	store *store.Store
	log   zerolog.Logger
}

func New(db *sql.DB, st *store.Store, log zerolog.Logger) *Registry {
	return &Registry{db: db, store: st, log: log.With().Str("component", "monitor_registry").Logger()}
}

// Create inserts a new Monitor after checking its formula does not
// introduce a cycle in the monitor dependency graph.
func (r *Registry) Create(m domain.Monitor) (domain.Monitor, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if cyclic, err := r.detectCycle(m.ID, m.Formula); err != nil {
		return domain.Monitor{}, err
	} else if cyclic {
		return domain.Monitor{}, apperror.New(apperror.KindCycleDetected, "formula introduces a circular monitor dependency")
	}

	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := r.db.Exec(`
		INSERT INTO monitors (id, name, unit, color, description, decimal_places, formula, enabled, heartbeat_interval_s, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.Unit, m.Color, m.Description, m.DecimalPlaces, m.Formula, boolToInt(m.Enabled), m.HeartbeatIntervalS,
		m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Monitor{}, apperror.Wrap(apperror.KindStoreUnavailable, "insert monitor", err)
	}
	return m, nil
}

// Update replaces an existing Monitor's fields, re-checking for cycles
// if the formula changed.
func (r *Registry) Update(m domain.Monitor) (domain.Monitor, error) {
	existing, err := r.Get(m.ID)
	if err != nil {
		return domain.Monitor{}, err
	}

	if m.Formula != existing.Formula {
		if cyclic, err := r.detectCycle(m.ID, m.Formula); err != nil {
			return domain.Monitor{}, err
		} else if cyclic {
			return domain.Monitor{}, apperror.New(apperror.KindCycleDetected, "formula introduces a circular monitor dependency")
		}
	}

	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	_, err = r.db.Exec(`
		UPDATE monitors SET name=?, unit=?, color=?, description=?, decimal_places=?, formula=?, enabled=?, heartbeat_interval_s=?, updated_at=?
		WHERE id=?
	`, m.Name, m.Unit, m.Color, m.Description, m.DecimalPlaces, m.Formula, boolToInt(m.Enabled), m.HeartbeatIntervalS,
		m.UpdatedAt.Format(time.RFC3339Nano), m.ID)
	if err != nil {
		return domain.Monitor{}, apperror.Wrap(apperror.KindStoreUnavailable, "update monitor", err)
	}
	return m, nil
}

// Delete removes a Monitor; its MonitorValues cascade via the
// schema's foreign key.
func (r *Registry) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return apperror.Wrap(apperror.KindStoreUnavailable, "delete monitor", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperror.New(apperror.KindNotFound, "monitor not found: "+id)
	}
	return nil
}

// Get fetches a single Monitor by id.
func (r *Registry) Get(id string) (domain.Monitor, error) {
	row := r.db.QueryRow(`
		SELECT id, name, unit, color, description, decimal_places, formula, enabled, heartbeat_interval_s, created_at, updated_at
		FROM monitors WHERE id = ?
	`, id)
	m, err := scanMonitor(row)
	if err == sql.ErrNoRows {
		return domain.Monitor{}, apperror.New(apperror.KindNotFound, "monitor not found: "+id)
	}
	if err != nil {
		return domain.Monitor{}, apperror.Wrap(apperror.KindStoreUnavailable, "get monitor", err)
	}
	return m, nil
}

// List returns every Monitor, optionally restricted to enabled ones.
func (r *Registry) List(enabledOnly bool) ([]domain.Monitor, error) {
	query := `SELECT id, name, unit, color, description, decimal_places, formula, enabled, heartbeat_interval_s, created_at, updated_at FROM monitors`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "list monitors", err)
	}
	defer rows.Close()

	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindStoreUnavailable, "scan monitor", err)
		}
		out = append(out, m)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMonitor(row rowScanner) (domain.Monitor, error) {
	var m domain.Monitor
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&m.ID, &m.Name, &m.Unit, &m.Color, &m.Description, &m.DecimalPlaces, &m.Formula, &enabled,
		&m.HeartbeatIntervalS, &createdAt, &updatedAt); err != nil {
		return domain.Monitor{}, err
	}
	m.Enabled = enabled != 0
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// detectCycle parses every other monitor's formula on demand to
// satisfy formula.DetectCycle's lookup callback.
func (r *Registry) detectCycle(monitorID, formulaStr string) (bool, error) {
	lookup := func(id string) (string, bool) {
		m, err := r.Get(id)
		if err != nil {
			return "", false
		}
		return m.Formula, true
	}
	return formula.DetectCycle(monitorID, formulaStr, lookup)
}

// --- formula.Resolver implementation ---

func (r *Registry) ResolveWebhook(id string) (*float64, error) {
	sample, err := r.store.Latest(id)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}
	return sample.Value, nil
}

func (r *Registry) ResolveFunding(exchange, symbol string) (*float64, error) {
	sample, err := r.store.Latest(store.FundingSourceID(exchange, symbol))
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}
	return sample.Value, nil
}

func (r *Registry) ResolveSpot(exchange, symbol string) (*float64, error) {
	sample, err := r.store.Latest(store.SpotSourceID(exchange, symbol))
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}
	return sample.Value, nil
}

// monitorResolver adapts Registry to formula.Resolver for a single
// top-level Evaluate/Compute call, carrying the `${monitor:X}`
// recursion guard as a set local to that call instead of
// registry-shared state. The alert tick, heartbeat tick, recompute
// sweep and webhook handlers each evaluate formulas from their own
// goroutine (scheduler.go's AddJob has no SkipIfStillRunning, and the
// HTTP server dispatches a goroutine per request), so a guard kept on
// Registry itself would be read and written concurrently with no
// synchronization — and worse, two unrelated evaluations would share
// one recursion set. Building a fresh monitorResolver per call avoids
// both.
type monitorResolver struct {
	registry *Registry
	visited  map[string]bool
}

func (m *monitorResolver) ResolveWebhook(id string) (*float64, error) {
	return m.registry.ResolveWebhook(id)
}

func (m *monitorResolver) ResolveFunding(exchange, symbol string) (*float64, error) {
	return m.registry.ResolveFunding(exchange, symbol)
}

func (m *monitorResolver) ResolveSpot(exchange, symbol string) (*float64, error) {
	return m.registry.ResolveSpot(exchange, symbol)
}

func (m *monitorResolver) ResolveMonitor(id string) (*float64, error) {
	return m.registry.resolveMonitor(id, m.visited)
}

// ResolveMonitor recursively evaluates a referenced monitor's own
// formula, matching the original system's "monitor:X resolves to the
// current value of monitor X" semantics (§4.E). Exported for direct
// callers (and formula.Resolver conformance); it starts its own
// recursion-guard set, same as a top-level Evaluate call would.
func (r *Registry) ResolveMonitor(id string) (*float64, error) {
	return r.resolveMonitor(id, map[string]bool{})
}

// resolveMonitor is ResolveMonitor's body, threading the recursion
// guard through nested monitor references instead of storing it on
// Registry.
func (r *Registry) resolveMonitor(id string, visited map[string]bool) (*float64, error) {
	if visited[id] {
		r.log.Warn().Str("monitor_id", id).Msg("monitor reference recursion guard tripped")
		return nil, nil
	}

	m, err := r.Get(id)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !m.Enabled {
		return nil, nil
	}

	visited[id] = true
	defer delete(visited, id)

	return r.evaluate(m.Formula, visited)
}

// Evaluate parses and fully resolves a formula string against this
// registry, returning nil if any dependency is unresolved.
func (r *Registry) Evaluate(formulaStr string) (*float64, error) {
	return r.evaluate(formulaStr, map[string]bool{})
}

func (r *Registry) evaluate(formulaStr string, visited map[string]bool) (*float64, error) {
	expr, err := formula.Parse(formulaStr)
	if err != nil {
		return nil, err
	}
	values, err := formula.ResolveAll(expr, &monitorResolver{registry: r, visited: visited})
	if err != nil {
		return nil, err
	}
	return formula.Eval(expr, values), nil
}

// Compute evaluates monitorID's formula and, if the value changed by
// more than changeThreshold from the last cached value, writes a new
// MonitorValue row. Returns the computed value (which may be nil if
// unresolved) and whether a new row was written.
func (r *Registry) Compute(monitorID string) (*float64, bool, error) {
	m, err := r.Get(monitorID)
	if err != nil {
		return nil, false, err
	}
	if !m.Enabled {
		return nil, false, nil
	}

	expr, err := formula.Parse(m.Formula)
	if err != nil {
		return nil, false, err
	}
	values, err := formula.ResolveAll(expr, &monitorResolver{registry: r, visited: map[string]bool{}})
	if err != nil {
		return nil, false, err
	}
	value := formula.Eval(expr, values)
	if value == nil {
		return nil, false, nil
	}

	latest, err := r.latestValue(monitorID)
	if err != nil {
		return nil, false, err
	}

	if latest != nil && abs(*value-latest.Value) <= changeThreshold {
		return value, false, nil
	}

	deps := expr.Dependencies()
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return nil, false, apperror.Wrap(apperror.KindFatal, "marshal dependencies", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO monitor_values (monitor_id, value, computed_at, dependencies) VALUES (?, ?, ?, ?)
	`, monitorID, *value, time.Now().UTC().Format(time.RFC3339Nano), string(depsJSON))
	if err != nil {
		return nil, false, apperror.Wrap(apperror.KindStoreUnavailable, "insert monitor value", err)
	}
	return value, true, nil
}

func (r *Registry) latestValue(monitorID string) (*domain.MonitorValue, error) {
	row := r.db.QueryRow(`
		SELECT id, monitor_id, value, computed_at, dependencies FROM monitor_values
		WHERE monitor_id = ? ORDER BY computed_at DESC, id DESC LIMIT 1
	`, monitorID)

	var mv domain.MonitorValue
	var computedAt, depsJSON string
	err := row.Scan(&mv.ID, &mv.MonitorID, &mv.Value, &computedAt, &depsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStoreUnavailable, "query latest monitor value", err)
	}
	mv.ComputedAt, _ = time.Parse(time.RFC3339Nano, computedAt)
	_ = json.Unmarshal([]byte(depsJSON), &mv.Dependencies)
	return &mv, nil
}

// LatestValue returns a Monitor's currently cached value, or nil if it
// has never successfully computed.
func (r *Registry) LatestValue(monitorID string) (*float64, error) {
	mv, err := r.latestValue(monitorID)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, nil
	}
	return &mv.Value, nil
}

// LastComputedAt returns the timestamp of a Monitor's most recently
// cached value, or nil if it has never successfully computed. Used by
// the heartbeat checker to measure data staleness (§4.I).
func (r *Registry) LastComputedAt(monitorID string) (*time.Time, error) {
	mv, err := r.latestValue(monitorID)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, nil
	}
	return &mv.ComputedAt, nil
}

// RecomputeAll iterates every enabled monitor and recomputes it,
// matching §4.F's periodic safety-net sweep. Returns the ids of
// monitors whose cached value changed.
func (r *Registry) RecomputeAll(enabledOnly bool) ([]string, error) {
	monitors, err := r.List(enabledOnly)
	if err != nil {
		return nil, err
	}

	var recomputed []string
	for _, m := range monitors {
		value, changed, err := r.Compute(m.ID)
		if err != nil {
			r.log.Error().Err(err).Str("monitor_id", m.ID).Msg("recompute failed")
			continue
		}
		if changed && value != nil {
			recomputed = append(recomputed, m.ID)
		}
	}
	return recomputed, nil
}

// RecomputeDependents recomputes every enabled monitor whose formula
// references changedDependency (e.g. "webhook:pricing"), the
// event-driven counterpart to RecomputeAll's periodic sweep.
func (r *Registry) RecomputeDependents(changedDependency string) ([]string, error) {
	monitors, err := r.List(true)
	if err != nil {
		return nil, err
	}

	var recomputed []string
	for _, m := range monitors {
		expr, err := formula.Parse(m.Formula)
		if err != nil {
			continue
		}
		if !containsString(expr.Dependencies(), changedDependency) {
			continue
		}
		value, changed, err := r.Compute(m.ID)
		if err != nil {
			r.log.Error().Err(err).Str("monitor_id", m.ID).Msg("dependent recompute failed")
			continue
		}
		if changed && value != nil {
			recomputed = append(recomputed, m.ID)
		}
	}
	return recomputed, nil
}

func containsString(items []string, target string) bool {
	for _, i := range items {
		if i == target {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
