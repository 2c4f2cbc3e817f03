package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes one command invocation against a fresh root command
// and returns the decoded JSON response.
func runCLI(t *testing.T, db string, args ...string) (CLIResponse, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--db", db, "--format", "json"))

	execErr := cmd.Execute()

	var resp CLIResponse
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp), "output: %s", out.String())
	}
	return resp, execErr
}

// initReturn creates a return via the CLI and returns its ID.
func initReturn(t *testing.T, db string) string {
	t.Helper()
	resp, err := runCLI(t, db, "init", "--taxpayer", "tp-100", "--year", "2024")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	id, ok := data["return_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cli.db")
}

func TestRoot_RejectsInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"init", "--taxpayer", "tp", "--year", "2024", "--format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInit_CreatesReturn(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)

	resp, err := runCLI(t, db, "show", id)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "tp-100", data["taxpayer"])
	assert.Equal(t, float64(2024), data["year"])
	assert.Equal(t, "0.00", data["tax_liability"])
	fields, ok := data["fields"].([]any)
	require.True(t, ok)
	assert.Len(t, fields, 13)
}

func TestInit_UnknownYear(t *testing.T) {
	resp, err := runCLI(t, testDB(t), "init", "--taxpayer", "tp-100", "--year", "1999")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeUnknownYear, resp.Error.Code)
}

func TestUpdate_WritesAndRecalculates(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)

	resp, err := runCLI(t, db, "update", id, "1040.filingStatus", "single")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	resp, err = runCLI(t, db, "update", id, "SchC_netProfit", "10000")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "1530.00", data["tax_liability"])
	assert.Equal(t, "0.00", data["refund"])
}

func TestUpdate_UnknownFieldFails(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)

	resp, err := runCLI(t, db, "update", id, "W9.unknown", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeFieldNotFound, resp.Error.Code)
}

func TestUpdate_MissingValueIsCommandError(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)

	_, err := runCLI(t, db, "update", id, "W2.wages")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUpdate_BatchFile(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)

	batch := filepath.Join(t.TempDir(), "updates.yaml")
	require.NoError(t, os.WriteFile(batch, []byte(`
actor: preparer-2
updates:
  - field: 1040.filingStatus
    value: single
  - field: W2.wages
    value: "30000"
  - field: W2.withholding
    value: "3000"
`), 0o644))

	resp, err := runCLI(t, db, "update", id, "--file", batch)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "1540.00", data["tax_liability"])
	assert.Equal(t, "1460.00", data["refund"])
}

func TestUpdate_OverrideSurvivesRecalc(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)

	_, err := runCLI(t, db, "update", id, "1040.filingStatus", "single")
	require.NoError(t, err)
	_, err = runCLI(t, db, "update", id, "SchSE.seTax", "999", "--override")
	require.NoError(t, err)

	resp, err := runCLI(t, db, "recalc", id)
	require.NoError(t, err)
	data := resp.Data.(map[string]any)
	skipped, ok := data["skipped_overridden"].([]any)
	require.True(t, ok)
	assert.Contains(t, skipped, "SchSE.seTax")
}

func TestDiag_ReportsStoredDiagnostics(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)

	// Recalc with no filing status stores one diagnostic.
	_, err := runCLI(t, db, "recalc", id)
	require.NoError(t, err)

	resp, err := runCLI(t, db, "diag", id)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	diags, ok := data["diagnostics"].([]any)
	require.True(t, ok)
	require.Len(t, diags, 1)
	first := diags[0].(map[string]any)
	assert.Equal(t, "1040.filingStatus", first["field_id"])
}

func TestAudit_VerifyIntactChain(t *testing.T) {
	db := testDB(t)
	id := initReturn(t, db)
	_, err := runCLI(t, db, "update", id, "W2.wages", "100")
	require.NoError(t, err)

	resp, err := runCLI(t, db, "audit", id, "--verify")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	verification := data["verification"].(map[string]any)
	assert.Equal(t, true, verification["valid"])
}

func TestCascade_DryRun(t *testing.T) {
	resp, err := runCLI(t, testDB(t), "cascade", "2024", "SchC.netProfit")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	touched, ok := data["touched"].([]any)
	require.True(t, ok)
	assert.Contains(t, touched, "SchC.netProfit")
	assert.Contains(t, touched, "SchSE.seTax")
}

func TestShow_MissingReturn(t *testing.T) {
	resp, err := runCLI(t, testDB(t), "show", "no-such-return")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeReturnNotFound, resp.Error.Code)
}
