package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxline/taxline/internal/engine"
)

func TestScenarios_Golden(t *testing.T) {
	matches, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, path := range matches {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_OverrideKeptOutOfApplied(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/override_se_tax.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Contains(t, result.Recalc.SkippedOverridden, "SchSE.seTax")
	assert.NotContains(t, result.Recalc.Applied, "SchSE.seTax")
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_expectation",
		Description: "expect clause that cannot hold",
		Year:        2024,
		Taxpayer:    "tp-1",
		Expect:      &ExpectClause{TaxLiability: "9999.99"},
	}
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tax liability = 0.00, expected 9999.99")
}

func TestRun_UnknownYearFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_year",
		Description: "year without configuration",
		Year:        1999,
		Taxpayer:    "tp-1",
	}
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeUnknownYear, engine.CodeOf(err))
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/se_tax_profit.yaml")
	require.NoError(t, err)
	assert.Equal(t, "se_tax_profit", scenario.Name)
	assert.Equal(t, 2024, scenario.Year)
	assert.Len(t, scenario.Updates, 2)
	require.NotNil(t, scenario.Expect)
	assert.Equal(t, "1530.00", scenario.Expect.TaxLiability)
	require.NotNil(t, scenario.Expect.DiagnosticCount)
	assert.Equal(t, 0, *scenario.Expect.DiagnosticCount)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: a typoed key
year: 2024
taxpayer: tp-1
update:
  - field: W2.wages
    value: "1"
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"missing name",
			"description: d\nyear: 2024\ntaxpayer: tp-1\n",
			"name is required",
		},
		{
			"missing description",
			"name: n\nyear: 2024\ntaxpayer: tp-1\n",
			"description is required",
		},
		{
			"missing year",
			"name: n\ndescription: d\ntaxpayer: tp-1\n",
			"year is required",
		},
		{
			"missing taxpayer",
			"name: n\ndescription: d\nyear: 2024\n",
			"taxpayer is required",
		},
		{
			"update without field",
			"name: n\ndescription: d\nyear: 2024\ntaxpayer: tp-1\nupdates:\n  - value: \"1\"\n",
			"updates[0]: field is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
