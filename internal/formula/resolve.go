package formula

import (
	"strings"

	"github.com/aristath/ratewatch/internal/apperror"
)

// Resolver resolves one formula dependency at a time to a scalar. It is
// implemented by the monitor registry for all four kinds: `monitor:`
// recursively, since a monitor's own formula may itself reference other
// monitors, and `webhook:`, `funding:` and `spot:` by reading the
// latest Sample from the Store.
type Resolver interface {
	ResolveWebhook(id string) (*float64, error)
	ResolveFunding(exchange, symbol string) (*float64, error)
	ResolveSpot(exchange, symbol string) (*float64, error)
	ResolveMonitor(id string) (*float64, error)
}

// ResolveAll resolves every Ref in expr, in order, via r. An
// individually-unresolved dependency yields a nil entry rather than an
// error; a malformed `funding:`/`spot:` reference (missing the
// "exchange-SYMBOL" dash) is itself a validation error.
func ResolveAll(expr *Expr, r Resolver) ([]*float64, error) {
	values := make([]*float64, len(expr.Refs))
	for i, ref := range expr.Refs {
		v, err := resolveOne(ref, r)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func resolveOne(ref Ref, r Resolver) (*float64, error) {
	switch ref.Kind {
	case "monitor":
		return r.ResolveMonitor(ref.ID)
	case "webhook":
		return r.ResolveWebhook(ref.ID)
	case "funding":
		exchange, symbol, err := splitExchangeSymbol(ref.ID)
		if err != nil {
			return nil, err
		}
		return r.ResolveFunding(exchange, symbol)
	case "spot":
		exchange, symbol, err := splitExchangeSymbol(ref.ID)
		if err != nil {
			return nil, err
		}
		return r.ResolveSpot(exchange, symbol)
	default:
		// An unknown reference kind has no resolution; it is treated
		// the same as any other unresolved dependency.
		return nil, nil
	}
}

func splitExchangeSymbol(id string) (exchange, symbol string, err error) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperror.New(apperror.KindValidationFailed, "expected exchange-SYMBOL reference, got: "+id)
	}
	return strings.ToLower(parts[0]), strings.ToUpper(parts[1]), nil
}
