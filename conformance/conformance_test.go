package conformance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadAll()
	require.NoError(t, err)
	require.NotEmpty(t, scenarios, "no scenarios loaded from fixtures/")

	for _, s := range scenarios {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			result := Run(s)
			if !result.Passed {
				t.Fatalf("%s: %v", s.Description, result.Err)
			}
		})
	}
}

func TestRunAllReportsPerScenario(t *testing.T) {
	scenarios, err := LoadAll()
	require.NoError(t, err)

	results := RunAll(scenarios)
	require.Len(t, results, len(scenarios))
	for _, r := range results {
		require.Truef(t, r.Passed, "%s: %v", r.Scenario.Name, r.Err)
	}
}
