package formula

import "math"

// Eval evaluates expr against the given bound values, one per
// expr.Refs entry in the same order. A nil entry means that
// dependency was unresolved; per §4.E step 3, the whole formula then
// yields nil rather than substituting zero or crashing.
func Eval(expr *Expr, values []*float64) *float64 {
	if len(values) != len(expr.Refs) {
		return nil
	}
	for _, v := range values {
		if v == nil {
			return nil
		}
	}
	return evalNode(expr.Root, values)
}

func evalNode(node Node, values []*float64) *float64 {
	switch n := node.(type) {
	case Literal:
		v := n.Value
		return &v

	case Var:
		return values[n.Index]

	case Unary:
		v := evalNode(n.Operand, values)
		if v == nil {
			return nil
		}
		r := -*v
		return &r

	case Binary:
		l := evalNode(n.Left, values)
		r := evalNode(n.Right, values)
		if l == nil || r == nil {
			return nil
		}
		var result float64
		switch n.Op {
		case '+':
			result = *l + *r
		case '-':
			result = *l - *r
		case '*':
			result = *l * *r
		case '/':
			if *r == 0 {
				return nil
			}
			result = *l / *r
		case '%':
			if *r == 0 {
				return nil
			}
			result = math.Mod(*l, *r)
		}
		return &result

	case Call:
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			v := evalNode(a, values)
			if v == nil {
				return nil
			}
			args[i] = *v
		}
		return callFunc(n.Name, args)
	}
	return nil
}

func callFunc(name string, args []float64) *float64 {
	if len(args) == 0 {
		return nil
	}
	var result float64
	switch name {
	case "abs":
		result = math.Abs(args[0])
	case "max":
		result = args[0]
		for _, a := range args[1:] {
			if a > result {
				result = a
			}
		}
	case "min":
		result = args[0]
		for _, a := range args[1:] {
			if a < result {
				result = a
			}
		}
	default:
		return nil
	}
	return &result
}
