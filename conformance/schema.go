// Package conformance runs the end-to-end scenarios spec.md §8 enumerates
// — source text in, observable behavior out — against a real
// engine.Engine instance, the same way a production language's
// conformance suite runs golden-file scripts against its own
// interpreter. Scenarios live as YAML fixtures under fixtures/ so new
// ones can be added without touching Go code.
package conformance

// Scenario is one end-to-end test case: a snippet of source text plus
// the behavior it must produce.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Source      string `yaml:"source"`

	// Expect fields are mutually exclusive in practice but not enforced
	// as such: a scenario checks whichever of these is non-empty/non-nil.
	Output       string   `yaml:"output,omitempty"`        // exact stdout match, say output
	ReturnNumber *float64 `yaml:"return_number,omitempty"` // top-level return value, numeric
	ReturnString *string  `yaml:"return_string,omitempty"`
	ErrorKind    string   `yaml:"error_kind,omitempty"` // RuntimeKind.String(), e.g. "IndexError"
}

// Suite is one YAML fixture file: a named group of scenarios.
type Suite struct {
	Name      string     `yaml:"name"`
	Scenarios []Scenario `yaml:"scenarios"`
}
