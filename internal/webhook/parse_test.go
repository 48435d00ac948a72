package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValueAndUnitPercent(t *testing.T) {
	v, unit := ParseValueAndUnit("12.34%")
	require.NotNil(t, v)
	assert.InDelta(t, 12.34, *v, 1e-9)
	assert.Equal(t, "%", unit)
}

func TestParseValueAndUnitDollarWithCommas(t *testing.T) {
	v, unit := ParseValueAndUnit("$1,234.50")
	require.NotNil(t, v)
	assert.InDelta(t, 1234.50, *v, 1e-9)
	assert.Equal(t, "$", unit)
}

func TestParseValueAndUnitKSuffix(t *testing.T) {
	v, unit := ParseValueAndUnit("4.2k")
	require.NotNil(t, v)
	assert.InDelta(t, 4200, *v, 1e-9)
	assert.Equal(t, "", unit)
}

func TestParseValueAndUnitMillionSuffix(t *testing.T) {
	v, unit := ParseValueAndUnit("1.5m SOL")
	require.NotNil(t, v)
	assert.InDelta(t, 1_500_000, *v, 1e-6)
	assert.Equal(t, "SOL", unit)
}

func TestParseValueAndUnitBillionSuffix(t *testing.T) {
	v, unit := ParseValueAndUnit("2b")
	require.NotNil(t, v)
	assert.InDelta(t, 2_000_000_000, *v, 1e-3)
	assert.Equal(t, "", unit)
}

func TestParseValueAndUnitCurrencyPrecedesCryptoTicker(t *testing.T) {
	_, unit := ParseValueAndUnit("$100 BTC")
	assert.Equal(t, "$", unit)
}

func TestParseValueAndUnitUnparseableReturnsNilValue(t *testing.T) {
	v, unit := ParseValueAndUnit("pending")
	assert.Nil(t, v)
	assert.Equal(t, "", unit)
}

func TestParseValueAndUnitEmptyText(t *testing.T) {
	v, unit := ParseValueAndUnit("")
	assert.Nil(t, v)
	assert.Equal(t, "", unit)
}

func TestPayloadValidateRequiresID(t *testing.T) {
	p := Payload{URL: "https://example.com", Text: "1"}
	assert.Error(t, p.Validate())
}

func TestPayloadValidateAcceptsAliases(t *testing.T) {
	p := Payload{MonitorID: "m1", URL: "https://example.com", TextValue: "1"}
	assert.NoError(t, p.Validate())
}

func TestNormalizeFallsBackToPayloadValueWhenUnparseable(t *testing.T) {
	fallback := 42.0
	p := Payload{ID: "m1", URI: "https://example.com", Text: "status: ok", Value: &fallback}
	norm := Normalize(p, time.Now())
	require.NotNil(t, norm.Value)
	assert.Equal(t, 42.0, *norm.Value)
}

func TestNormalizePrefersParsedTimestamp(t *testing.T) {
	p := Payload{ID: "m1", URI: "u", Text: "1", Timestamp: "2024-01-02T03:04:05Z"}
	norm := Normalize(p, time.Now())
	assert.Equal(t, 2024, norm.Timestamp.Year())
}

func TestNormalizeFallsBackToNowOnBadTimestamp(t *testing.T) {
	now := time.Now()
	p := Payload{ID: "m1", URI: "u", Text: "1", Timestamp: "not-a-timestamp"}
	norm := Normalize(p, now)
	assert.Equal(t, now, norm.Timestamp)
}
