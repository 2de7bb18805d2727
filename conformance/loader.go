package conformance

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var fixturesFS embed.FS

// LoadAll reads every embedded fixture file and flattens it into a
// deterministically ordered scenario list (sorted by fixture file name,
// then declaration order within the file).
func LoadAll() ([]Scenario, error) {
	entries, err := fixturesFS.ReadDir("fixtures")
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []Scenario
	for _, name := range names {
		data, err := fixturesFS.ReadFile("fixtures/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		var suite Suite
		if err := yaml.Unmarshal(data, &suite); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		all = append(all, suite.Scenarios...)
	}
	return all, nil
}
