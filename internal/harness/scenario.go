package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end return preparation scenario.
// Scenarios seed a fresh return, apply a sequence of field updates,
// recalculate, and assert on the resulting aggregates.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are stored
	// under testdata/golden/{Name}.golden.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Year is the tax year for the return.
	Year int `yaml:"year"`

	// Taxpayer is the taxpayer identifier for the seeded return.
	Taxpayer string `yaml:"taxpayer"`

	// Updates is the sequence of field updates to apply before
	// recalculation. Values parse as JSON literals where possible.
	Updates []UpdateStep `yaml:"updates"`

	// Expect optionally asserts on the recalculation outcome.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// UpdateStep is one field update within a scenario.
type UpdateStep struct {
	// Field is the field key in any separator dialect.
	Field string `yaml:"field"`

	// Value is the textual value; parsed like CLI input.
	Value string `yaml:"value"`

	// Override marks the field as overridden.
	Override *bool `yaml:"override,omitempty"`

	// Estimated marks the value as estimated.
	Estimated *bool `yaml:"estimated,omitempty"`

	// Actor is recorded in the audit log. Defaults to "harness".
	Actor string `yaml:"actor,omitempty"`
}

// ExpectClause asserts on the final aggregates.
type ExpectClause struct {
	// Refund is the expected refund, cents precision (e.g. "0.00").
	Refund string `yaml:"refund,omitempty"`

	// TaxLiability is the expected liability, cents precision.
	TaxLiability string `yaml:"tax_liability,omitempty"`

	// DiagnosticCount is the expected number of diagnostics.
	DiagnosticCount *int `yaml:"diagnostic_count,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "update:" vs "updates:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Year == 0 {
		return fmt.Errorf("year is required")
	}

	if s.Taxpayer == "" {
		return fmt.Errorf("taxpayer is required")
	}

	for i, step := range s.Updates {
		if step.Field == "" {
			return fmt.Errorf("updates[%d]: field is required", i)
		}
	}

	return nil
}
