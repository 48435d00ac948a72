package formula

import "github.com/aristath/ratewatch/internal/apperror"

// FormulaLookup returns the formula string for an existing monitor id,
// or ok=false if no such monitor exists.
type FormulaLookup func(monitorID string) (formula string, ok bool)

// DetectCycle reports whether saving monitorID with the given formula
// would create a cycle in the `monitor -> monitor` dependency graph,
// per §4.E. It walks `monitor:` references via DFS with a path set;
// non-monitor dependencies are ignored since they cannot cycle back.
func DetectCycle(monitorID, formula string, lookup FormulaLookup) (bool, error) {
	expr, err := Parse(formula)
	if err != nil {
		return false, apperror.Wrap(apperror.KindValidationFailed, "parse formula for cycle check", err)
	}

	path := map[string]bool{monitorID: true}
	visited := map[string]bool{}
	return walkMonitorDeps(expr, monitorID, path, visited, lookup)
}

func walkMonitorDeps(expr *Expr, monitorID string, path, visited map[string]bool, lookup FormulaLookup) (bool, error) {
	for _, ref := range expr.Refs {
		if ref.Kind != "monitor" {
			continue
		}
		depID := ref.ID

		if depID == monitorID || path[depID] {
			return true, nil
		}
		if visited[depID] {
			continue
		}
		visited[depID] = true

		depFormula, ok := lookup(depID)
		if !ok {
			continue
		}
		depExpr, err := Parse(depFormula)
		if err != nil {
			return false, apperror.Wrap(apperror.KindValidationFailed, "parse dependency formula for cycle check", err)
		}

		path[depID] = true
		found, err := walkMonitorDeps(depExpr, monitorID, path, visited, lookup)
		delete(path, depID)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}
