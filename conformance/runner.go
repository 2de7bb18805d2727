package conformance

import (
	"bytes"
	"fmt"

	"neutron/engine"
	"neutron/types"
)

// Result is the outcome of running one Scenario.
type Result struct {
	Scenario Scenario
	Passed   bool
	Err      error
}

// Run evaluates one scenario against a fresh Engine (spec.md §9: "tests
// must start from a fresh scheduler") and checks it against whichever
// expectation field the scenario sets.
func Run(s Scenario) Result {
	var out bytes.Buffer
	e := engine.New(engine.Config{Output: &out})
	val, err := e.EvalFile(s.Source, s.Name)

	if s.ErrorKind != "" {
		re, ok := err.(*types.RuntimeError)
		if !ok {
			return Result{s, false, fmt.Errorf("expected RuntimeError kind %s, got %v", s.ErrorKind, err)}
		}
		if re.Kind.String() != s.ErrorKind {
			return Result{s, false, fmt.Errorf("expected error kind %s, got %s", s.ErrorKind, re.Kind)}
		}
		return Result{s, true, nil}
	}

	if err != nil {
		return Result{s, false, fmt.Errorf("unexpected error: %w", err)}
	}

	if s.Output != "" {
		if out.String() != s.Output {
			return Result{s, false, fmt.Errorf("expected output %q, got %q", s.Output, out.String())}
		}
		return Result{s, true, nil}
	}

	if s.ReturnNumber != nil {
		n, ok := val.(types.Number)
		if !ok {
			return Result{s, false, fmt.Errorf("expected numeric return, got %T", val)}
		}
		if float64(n) != *s.ReturnNumber {
			return Result{s, false, fmt.Errorf("expected return %v, got %v", *s.ReturnNumber, n)}
		}
		return Result{s, true, nil}
	}

	if s.ReturnString != nil {
		str, ok := val.(*types.ObjString)
		if !ok {
			return Result{s, false, fmt.Errorf("expected string return, got %T", val)}
		}
		if str.String() != *s.ReturnString {
			return Result{s, false, fmt.Errorf("expected return %q, got %q", *s.ReturnString, str.String())}
		}
		return Result{s, true, nil}
	}

	return Result{s, false, fmt.Errorf("scenario %q declares no expectation", s.Name)}
}

// RunAll runs every scenario and returns one Result per scenario, in
// order.
func RunAll(scenarios []Scenario) []Result {
	results := make([]Result, len(scenarios))
	for i, s := range scenarios {
		results[i] = Run(s)
	}
	return results
}
