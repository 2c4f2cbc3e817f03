// Package harness provides end-to-end scenario testing for the return
// engine.
//
// A scenario seeds a fresh return, applies field updates through the
// real orchestrator, recalculates, and captures the final state. Each
// run uses a fresh database file with deterministic IDs and pinned
// timestamps, so two runs of the same scenario produce byte-identical
// snapshots for golden file comparison.
package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taxline/taxline/internal/engine"
	"github.com/taxline/taxline/internal/fieldval"
	"github.com/taxline/taxline/internal/store"
	"github.com/taxline/taxline/internal/taxyear"
	"github.com/taxline/taxline/internal/testutil"
)

// Result captures the final state of a scenario run.
type Result struct {
	ReturnID string
	Recalc   engine.RecalcResult
	Fields   []store.Field
}

// Run executes a scenario against a fresh database and returns the
// final state.
//
// Each scenario runs in its own temporary database file for isolation.
// Deterministic helpers (fixed ID sequence, pinned time) ensure
// reproducible results.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "taxline-harness-*")
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	defer st.Close()

	years, err := taxyear.Load()
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	eng := engine.New(st, years,
		engine.WithIDGenerator(testutil.NewFixedGenerator()),
		engine.WithTimeSource(testutil.NewDeterministicTime(1700000000)),
	)

	ctx := context.Background()
	returnID, err := eng.SeedReturn(ctx, scenario.Taxpayer, scenario.Year)
	if err != nil {
		return nil, fmt.Errorf("harness: seed: %w", err)
	}

	for i, step := range scenario.Updates {
		actor := step.Actor
		if actor == "" {
			actor = "harness"
		}
		_, err := eng.ApplyFieldUpdate(ctx, engine.UpdateRequest{
			ReturnID: returnID,
			FieldKey: step.Field,
			Value:    fieldval.Parse(step.Value),
			Actor:    actor,
			Meta: engine.UpdateMeta{
				Override:  step.Override,
				Estimated: step.Estimated,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("harness: update %d (%s): %w", i+1, step.Field, err)
		}
	}

	recalc, err := eng.Recalculate(ctx, returnID)
	if err != nil {
		return nil, fmt.Errorf("harness: recalculate: %w", err)
	}

	if err := checkExpect(scenario.Expect, recalc); err != nil {
		return nil, fmt.Errorf("harness: scenario %s: %w", scenario.Name, err)
	}

	fields, err := st.GetFields(ctx, returnID)
	if err != nil {
		return nil, fmt.Errorf("harness: read fields: %w", err)
	}

	return &Result{
		ReturnID: returnID,
		Recalc:   recalc,
		Fields:   fields,
	}, nil
}

// checkExpect validates the expect clause against the recalc outcome.
func checkExpect(expect *ExpectClause, recalc engine.RecalcResult) error {
	if expect == nil {
		return nil
	}
	if expect.Refund != "" && recalc.Refund != expect.Refund {
		return fmt.Errorf("refund = %s, expected %s", recalc.Refund, expect.Refund)
	}
	if expect.TaxLiability != "" && recalc.TaxLiability != expect.TaxLiability {
		return fmt.Errorf("tax liability = %s, expected %s", recalc.TaxLiability, expect.TaxLiability)
	}
	if expect.DiagnosticCount != nil && len(recalc.Diagnostics) != *expect.DiagnosticCount {
		return fmt.Errorf("diagnostic count = %d, expected %d", len(recalc.Diagnostics), *expect.DiagnosticCount)
	}
	return nil
}
