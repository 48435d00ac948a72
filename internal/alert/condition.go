// Package alert implements §4.H/I: the Alert Engine (condition
// evaluation, cooldowns, tiers) and the Heartbeat Checker.
package alert

import (
	"regexp"
	"strings"

	"github.com/aristath/ratewatch/internal/apperror"
)

// comparisonPattern splits a condition into "left OP right", matching
// the leftmost occurrence of one of the six comparison operators.
// Longer operators (>=, <=, ==, !=) are tried before their single-
// character prefixes so "a >= b" doesn't split on the bare ">".
var comparisonPattern = regexp.MustCompile(`^(.+?)\s*(>=|<=|==|!=|>|<)\s*(.+)$`)

// Evaluator resolves a formula string to a scalar, matching how the
// monitor registry already evaluates `${monitor:X}`/`${webhook:X}`
// expressions. An alert condition's left/right sides are each parsed
// and evaluated via this same path, never via a host-language eval —
// the comparison operator is the only thing this package interprets.
type Evaluator interface {
	Evaluate(formula string) (*float64, error)
}

// Condition is a parsed alert condition: two formula expressions and
// the comparison operator between them.
type Condition struct {
	Left     string
	Operator string
	Right    string
}

// ParseCondition splits a raw condition string, e.g.
// "${monitor:btc} > 50000" or "abs(${monitor:spread}) >= 100".
func ParseCondition(condition string) (Condition, error) {
	m := comparisonPattern.FindStringSubmatch(strings.TrimSpace(condition))
	if m == nil {
		return Condition{}, apperror.New(apperror.KindValidationFailed, "invalid condition format: "+condition)
	}
	return Condition{Left: strings.TrimSpace(m[1]), Operator: m[2], Right: strings.TrimSpace(m[3])}, nil
}

// Evaluate resolves both sides of a condition through ev and applies
// the comparison operator. Returns (result, triggerValue, error);
// result is nil if either side could not be resolved.
func (c Condition) Evaluate(ev Evaluator) (result *bool, triggerValue *float64, err error) {
	left, err := ev.Evaluate(c.Left)
	if err != nil {
		return nil, nil, err
	}
	if left == nil {
		return nil, nil, nil
	}

	right, err := ev.Evaluate(c.Right)
	if err != nil {
		return nil, nil, err
	}
	if right == nil {
		return nil, nil, nil
	}

	var got bool
	switch c.Operator {
	case ">":
		got = *left > *right
	case ">=":
		got = *left >= *right
	case "<":
		got = *left < *right
	case "<=":
		got = *left <= *right
	case "==":
		got = abs(*left-*right) < floatEqTolerance
	case "!=":
		got = abs(*left-*right) >= floatEqTolerance
	default:
		return nil, nil, apperror.New(apperror.KindValidationFailed, "unknown comparison operator: "+c.Operator)
	}

	return &got, left, nil
}

// floatEqTolerance matches the formula/monitor package's
// change-detection epsilon, reused here for == / != comparisons.
const floatEqTolerance = 1e-10

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
