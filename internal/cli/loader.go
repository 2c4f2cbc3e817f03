package cli

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/taxline/taxline/internal/engine"
	"github.com/taxline/taxline/internal/shield"
	"github.com/taxline/taxline/internal/store"
	"github.com/taxline/taxline/internal/taxyear"
)

// sealKeyEnv names the environment variable carrying the base64
// 32-byte PII sealing key. Unset means passthrough (no sealing).
const sealKeyEnv = "TAXLINE_SEAL_KEY"

// env bundles the opened store and engine for one command invocation.
type env struct {
	store  *store.Store
	engine *engine.Engine
	years  *taxyear.Registry
}

// openEnv opens the database and wires the engine with the embedded
// year configuration. Callers must Close.
func openEnv(opts *RootOptions) (*env, error) {
	years, err := taxyear.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load year configuration", err)
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", opts.DBPath), err)
	}

	sealer, err := sealerFromEnv()
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "configure sealer", err)
	}

	eng := engine.New(st, years, engine.WithSealer(sealer))
	return &env{store: st, engine: eng, years: years}, nil
}

// Close releases the environment's database handle.
func (e *env) Close() error {
	return e.store.Close()
}

// sealerFromEnv builds the PII sealer from the environment.
func sealerFromEnv() (shield.Sealer, error) {
	raw := os.Getenv(sealKeyEnv)
	if raw == "" {
		return shield.Passthrough{}, nil
	}

	keyBytes, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64: %w", sealKeyEnv, err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("%s: key must be 32 bytes, got %d", sealKeyEnv, len(keyBytes))
	}

	var key [32]byte
	copy(key[:], keyBytes)
	return shield.NewSecretbox(key), nil
}
