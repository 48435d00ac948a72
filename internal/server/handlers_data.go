package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/ratewatch/internal/domain"
)

const dateLayout = "2006-01-02"

// handleData is §6's paged Sample list: `GET
// /data?monitor_id=…&start_date=…&end_date=…&limit=…&offset=…&order_by=…&order_dir=…`.
// "monitor_id" names a Sample's source_id, not a monitor.Registry id —
// the naming is Distill's own and is carried through unchanged.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sourceID := q.Get("monitor_id")

	var start, end time.Time
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid start_date format. Use YYYY-MM-DD")
			return
		}
		start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid end_date format. Use YYYY-MM-DD")
			return
		}
		end = t.AddDate(0, 0, 1)
	}

	limit := queryInt(q, "limit", 100)
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		writeErrorStatus(w, http.StatusBadRequest, "limit must not exceed 1000")
		return
	}
	offset := queryInt(q, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	orderBy := q.Get("order_by")
	if orderBy == "" {
		orderBy = "timestamp"
	}
	orderDir := q.Get("order_dir")
	if orderDir == "" {
		orderDir = "desc"
	}

	samples, err := s.eng.Store.ByRangeOrdered(sourceID, start, end, limit, offset, orderBy, orderDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// chartPoint is one plotted sample, trimmed to what a chart needs.
type chartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	IsChange  bool      `json:"is_change"`
}

type valueRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Avg *float64 `json:"avg"`
}

type chartSummary struct {
	TotalPoints      int        `json:"total_points"`
	DisplayedPoints  int        `json:"displayed_points"`
	DateRange        string     `json:"date_range"`
	ValueRange       valueRange `json:"value_range"`
	ChangesDetected  int        `json:"changes_detected"`
	LatestValue      *float64   `json:"latest_value"`
	LatestTimestamp  *time.Time `json:"latest_timestamp,omitempty"`
}

type chartDataResponse struct {
	MonitorID   string       `json:"monitor_id"`
	MonitorName string       `json:"monitor_name,omitempty"`
	Data        []chartPoint `json:"data"`
	Summary     chartSummary `json:"summary"`
}

// maxChartPoints is the chart thinning threshold: windows of more than
// 500 records are thinned by a floor(len/500) stride plus the final
// record, so a response can hold more than 500 points (e.g. 501 for
// 1000 records, 999 for 999 records).
const maxChartPoints = 500

// handleChartData is §6's `GET /chart-data/{monitor_id}?days=1..365`.
func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "monitor_id")

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 365 {
		days = 365
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	records, err := s.eng.Store.ByRangeOrdered(sourceID, start, end, 0, 0, "timestamp", "asc")
	if err != nil {
		writeError(w, err)
		return
	}

	dateRange := fmt.Sprintf("%s to %s", start.Format(dateLayout), end.Format(dateLayout))

	if len(records) == 0 {
		writeJSON(w, http.StatusOK, chartDataResponse{
			MonitorID: sourceID,
			Data:      []chartPoint{},
			Summary:   chartSummary{DateRange: dateRange},
		})
		return
	}

	displayed := downsample(records, maxChartPoints)

	points := make([]chartPoint, 0, len(displayed))
	for _, rec := range displayed {
		points = append(points, chartPoint{Timestamp: rec.Timestamp, Value: rec.Value, IsChange: rec.IsChange})
	}

	summary := summarize(records, len(displayed), dateRange)
	last := records[len(records)-1]

	writeJSON(w, http.StatusOK, chartDataResponse{
		MonitorID:   sourceID,
		MonitorName: last.DisplayName,
		Data:        points,
		Summary:     summary,
	})
}

// downsample keeps every interval-th record (interval = floor(len/max))
// plus the final record, matching the original chart endpoint's
// stride sampling so a long window still renders in bounded points.
func downsample(records []domain.Sample, max int) []domain.Sample {
	if len(records) <= max {
		return records
	}
	interval := len(records) / max
	out := make([]domain.Sample, 0, max+1)
	for i := 0; i < len(records); i += interval {
		out = append(out, records[i])
	}
	if last := records[len(records)-1]; out[len(out)-1].ID != last.ID {
		out = append(out, last)
	}
	return out
}

func summarize(records []domain.Sample, displayed int, dateRange string) chartSummary {
	var values []float64
	changes := 0
	for _, r := range records {
		if r.Value != nil {
			values = append(values, *r.Value)
		}
		if r.IsChange {
			changes++
		}
	}

	summary := chartSummary{
		TotalPoints:     len(records),
		DisplayedPoints: displayed,
		DateRange:       dateRange,
		ChangesDetected: changes,
	}

	last := records[len(records)-1]
	summary.LatestValue = last.Value
	lastTS := last.Timestamp
	summary.LatestTimestamp = &lastTS

	if len(values) > 0 {
		mn, mx, sum := values[0], values[0], 0.0
		for _, v := range values {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
			sum += v
		}
		avg := sum / float64(len(values))
		summary.ValueRange = valueRange{Min: &mn, Max: &mx, Avg: &avg}
	}

	return summary
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return n
}
