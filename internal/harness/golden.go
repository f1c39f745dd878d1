package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs scenario and compares its rendered trace with
// testdata/golden/<name>.golden. It also fails the test if the scenario's
// own expectations do not hold.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) *Result {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		t.Fatalf("run %s: %v", scenario.Name, err)
	}
	for _, f := range result.Failures {
		t.Errorf("%s: %s", scenario.Name, f)
	}

	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(result.Text()))
}
