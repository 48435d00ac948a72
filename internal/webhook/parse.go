// Package webhook implements §6's distill webhook ingestion: payload
// field aliasing, text->(value,unit) parsing, and timestamp parsing
// tolerant of the handful of formats Distill has been observed to send.
package webhook

import (
	"strconv"
	"strings"
	"time"

	"github.com/aristath/ratewatch/internal/apperror"
)

// Payload is the raw Distill webhook body. Distill's own field naming
// has drifted across versions, so every semantic field accepts two
// aliases; callers should prefer the first non-empty of each pair.
type Payload struct {
	ID          string   `json:"id"`
	MonitorID   string   `json:"monitor_id"`
	URI         string   `json:"uri"`
	URL         string   `json:"url"`
	Text        string   `json:"text"`
	TextValue   string   `json:"text_value"`
	Value       *float64 `json:"value"`
	Timestamp   string   `json:"timestamp"`
	Status      string   `json:"status"`
	Name        string   `json:"name"`
	MonitorName string   `json:"monitor_name"`
}

// SourceID returns the payload's id, preferring the Distill-native
// `id` field over the legacy `monitor_id` alias.
func (p Payload) SourceID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.MonitorID
}

func (p Payload) url() string {
	if p.URI != "" {
		return p.URI
	}
	return p.URL
}

func (p Payload) text() string {
	if p.Text != "" {
		return p.Text
	}
	return p.TextValue
}

// Validate checks the fields the distill endpoint requires, matching
// webhook.py's id/uri/text-or-alias checks.
func (p Payload) Validate() error {
	if p.SourceID() == "" {
		return apperror.New(apperror.KindValidationFailed, "id or monitor_id is required")
	}
	if p.url() == "" {
		return apperror.New(apperror.KindValidationFailed, "uri or url is required")
	}
	if p.text() == "" {
		return apperror.New(apperror.KindValidationFailed, "text or text_value is required")
	}
	return nil
}

func (p Payload) displayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.MonitorName
}

// Normalized is the result of distilling a raw Payload: the fields a
// Sample needs, plus whatever couldn't be resolved from text and must
// fall back to the payload's own numeric `value` field.
type Normalized struct {
	SourceID    string
	DisplayName string
	URL         string
	Text        string
	Value       *float64
	Unit        string
	Timestamp   time.Time
}

// Normalize extracts a Sample-ready record from a raw Payload,
// matching monitoring.py's _create_monitoring_data field mapping.
func Normalize(p Payload, now time.Time) Normalized {
	text := p.text()
	value, unit := ParseValueAndUnit(text)
	if value == nil {
		value = p.Value
	}

	ts := now
	if p.Timestamp != "" {
		if parsed, ok := parseTimestamp(p.Timestamp); ok {
			ts = parsed
		}
	}

	return Normalized{
		SourceID:    p.SourceID(),
		DisplayName: p.displayName(),
		URL:         p.url(),
		Text:        text,
		Value:       value,
		Unit:        unit,
		Timestamp:   ts,
	}
}

// currencyUnits is checked before crypto units, matching the original
// parser's observed (if debatable) precedence: a text value containing
// both a currency symbol and a crypto ticker reports the currency.
var currencyUnits = []string{"%", "$", "€", "£"}
var cryptoUnits = []string{"SOL", "ETH", "BTC"}

// ParseValueAndUnit extracts a numeric value and its unit from free
// text like "$1,234.50" or "12.3%" or "4.2m SOL". Unit detection order
// is %, $, €, £, then SOL/ETH/BTC — a known quirk carried over as-is
// rather than "fixed", since changing it would silently reclassify
// historical data written under the old precedence.
func ParseValueAndUnit(text string) (*float64, string) {
	if text == "" {
		return nil, ""
	}

	unit := ""
	for _, u := range currencyUnits {
		if strings.Contains(text, u) {
			unit = u
			break
		}
	}
	if unit == "" {
		for _, u := range cryptoUnits {
			if strings.Contains(text, u) {
				unit = u
				break
			}
		}
	}

	clean := text
	for _, u := range append(append([]string{}, currencyUnits...), cryptoUnits...) {
		clean = strings.ReplaceAll(clean, u, "")
	}
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSpace(clean)

	multiplier := 1.0
	lower := strings.ToLower(clean)
	switch {
	case strings.HasSuffix(lower, "k"):
		multiplier = 1_000
		clean = strings.TrimSpace(clean[:len(clean)-1])
	case strings.HasSuffix(lower, "m"):
		multiplier = 1_000_000
		clean = strings.TrimSpace(clean[:len(clean)-1])
	case strings.HasSuffix(lower, "b"):
		multiplier = 1_000_000_000
		clean = strings.TrimSpace(clean[:len(clean)-1])
	}

	num, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil, unit
	}
	v := num * multiplier
	return &v, unit
}

// timestampLayouts mirrors _parse_timestamp's fallback chain.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
