package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/taxline/taxline/internal/fieldid"
	"github.com/taxline/taxline/internal/fieldval"
)

// snapshot converts a scenario result to a canonical JSON document.
// Canonical serialization (sorted keys, reduced numbers) makes the
// bytes stable across runs, which is what golden comparison needs.
func snapshot(result *Result) ([]byte, error) {
	fields := make(fieldval.Object, len(result.Fields))
	for _, f := range result.Fields {
		fields[fieldid.Join(f.FormID, f.FieldID)] = f.Value
	}

	diagnostics := make(fieldval.List, 0, len(result.Recalc.Diagnostics))
	for _, d := range result.Recalc.Diagnostics {
		diagnostics = append(diagnostics, fieldval.Object{
			"form_id":  fieldval.String(d.FormID),
			"field_id": fieldval.String(d.FieldID),
			"severity": fieldval.String(string(d.Severity)),
			"message":  fieldval.String(d.Message),
		})
	}

	doc := fieldval.Object{
		"refund":        fieldval.String(result.Recalc.Refund),
		"tax_liability": fieldval.String(result.Recalc.TaxLiability),
		"diagnostics":   diagnostics,
		"fields":        fields,
	}
	return fieldval.MarshalCanonical(doc)
}

// RunWithGolden executes a scenario and compares the final state
// snapshot against a golden file stored in
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	data, err := snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
