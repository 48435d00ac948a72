package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestParseLiteral(t *testing.T) {
	expr, err := Parse("12")
	require.NoError(t, err)
	assert.Empty(t, expr.Refs)
	assert.Equal(t, fp(12), Eval(expr, nil))
}

func TestParseNegativeLiteral(t *testing.T) {
	expr, err := Parse("-0.5")
	require.NoError(t, err)
	got := Eval(expr, nil)
	require.NotNil(t, got)
	assert.Equal(t, -0.5, *got)
}

func TestParseArithmeticPrecedence(t *testing.T) {
	expr, err := Parse("2 + 3 * 4")
	require.NoError(t, err)
	got := Eval(expr, nil)
	require.NotNil(t, got)
	assert.Equal(t, 14.0, *got)
}

func TestParseParentheses(t *testing.T) {
	expr, err := Parse("(2 + 3) * 4")
	require.NoError(t, err)
	got := Eval(expr, nil)
	require.NotNil(t, got)
	assert.Equal(t, 20.0, *got)
}

func TestParseFunctions(t *testing.T) {
	expr, err := Parse("abs(-5) + max(1, 2, 3) - min(1, 2)")
	require.NoError(t, err)
	got := Eval(expr, nil)
	require.NotNil(t, got)
	assert.Equal(t, 7.0, *got)
}

func TestParseSingleReferenceIsAlias(t *testing.T) {
	expr, err := Parse("${monitor:btc}")
	require.NoError(t, err)
	require.Len(t, expr.Refs, 1)
	assert.Equal(t, Ref{Kind: "monitor", ID: "btc"}, expr.Refs[0])

	got := Eval(expr, []*float64{fp(42)})
	require.NotNil(t, got)
	assert.Equal(t, 42.0, *got)
}

func TestParseComputedFormulaWithMultipleRefs(t *testing.T) {
	expr, err := Parse("abs(${monitor:a} - ${monitor:b}) / 100")
	require.NoError(t, err)
	require.Len(t, expr.Refs, 2)

	got := Eval(expr, []*float64{fp(150), fp(100)})
	require.NotNil(t, got)
	assert.Equal(t, 0.5, *got)
}

func TestParseFundingAndSpotReferences(t *testing.T) {
	expr, err := Parse("(${spot:binance-BTC} - ${spot:lighter-BTC}) / ${spot:binance-BTC} * 100")
	require.NoError(t, err)
	require.Len(t, expr.Refs, 3)
	for _, r := range expr.Refs {
		assert.Equal(t, "spot", r.Kind)
	}
}

func TestEvalUnresolvedDependencyYieldsNil(t *testing.T) {
	expr, err := Parse("${monitor:a} + 1")
	require.NoError(t, err)
	got := Eval(expr, []*float64{nil})
	assert.Nil(t, got)
}

func TestEvalDivisionByZeroYieldsNil(t *testing.T) {
	expr, err := Parse("1 / ${monitor:zero}")
	require.NoError(t, err)
	got := Eval(expr, []*float64{fp(0)})
	assert.Nil(t, got)
}

func TestDependenciesDeduplicated(t *testing.T) {
	expr, err := Parse("${monitor:a} + ${monitor:a} + ${monitor:b}")
	require.NoError(t, err)
	deps := expr.Dependencies()
	assert.ElementsMatch(t, []string{"monitor:a", "monitor:b"}, deps)
}

func TestResolveAllDispatchesByKind(t *testing.T) {
	expr, err := Parse("${monitor:a} + ${webhook:w} + ${funding:lighter-BTC} + ${spot:binance-ETH}")
	require.NoError(t, err)

	r := &stubResolver{
		monitor: map[string]*float64{"a": fp(1)},
		webhook: map[string]*float64{"w": fp(2)},
		funding: map[string]*float64{"lighter:BTC": fp(3)},
		spot:    map[string]*float64{"binance:ETH": fp(4)},
	}
	values, err := ResolveAll(expr, r)
	require.NoError(t, err)
	got := Eval(expr, values)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, *got)
}

func TestResolveMalformedFundingReferenceErrors(t *testing.T) {
	expr, err := Parse("${funding:nodash}")
	require.NoError(t, err)
	_, err = ResolveAll(expr, &stubResolver{})
	assert.Error(t, err)
}

func TestDetectCycleDirect(t *testing.T) {
	lookup := func(id string) (string, bool) {
		if id == "b" {
			return "${monitor:a}", true
		}
		return "", false
	}
	cyclic, err := DetectCycle("a", "${monitor:b}", lookup)
	require.NoError(t, err)
	assert.True(t, cyclic)
}

func TestDetectCycleIndirect(t *testing.T) {
	formulas := map[string]string{
		"b": "${monitor:c}",
		"c": "${monitor:d}",
	}
	lookup := func(id string) (string, bool) {
		f, ok := formulas[id]
		return f, ok
	}
	cyclic, err := DetectCycle("d", "${monitor:b}", lookup)
	require.NoError(t, err)
	assert.True(t, cyclic)
}

func TestDetectCycleNoneFound(t *testing.T) {
	formulas := map[string]string{"b": "${monitor:c}"}
	lookup := func(id string) (string, bool) {
		f, ok := formulas[id]
		return f, ok
	}
	cyclic, err := DetectCycle("a", "${monitor:b}", lookup)
	require.NoError(t, err)
	assert.False(t, cyclic)
}

type stubResolver struct {
	monitor map[string]*float64
	webhook map[string]*float64
	funding map[string]*float64
	spot    map[string]*float64
}

func (s *stubResolver) ResolveMonitor(id string) (*float64, error) { return s.monitor[id], nil }
func (s *stubResolver) ResolveWebhook(id string) (*float64, error) { return s.webhook[id], nil }
func (s *stubResolver) ResolveFunding(exchange, symbol string) (*float64, error) {
	return s.funding[exchange+":"+symbol], nil
}
func (s *stubResolver) ResolveSpot(exchange, symbol string) (*float64, error) {
	return s.spot[exchange+":"+symbol], nil
}
