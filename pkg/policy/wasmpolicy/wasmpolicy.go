// Package wasmpolicy evaluates a policy whose implementation is a
// precompiled WebAssembly module. The call shape is fixed: feed the
// policy's JSON-encoded kwargs in on stdin, read an admit/deny
// verdict back on stdout. The module gets nothing else — no
// filesystem, no network, no env, no clock beyond what WASI's
// preview1 shim refuses by default.
package wasmpolicy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Config bounds one WASM policy evaluation: memory ceiling and CPU
// time limit. There is no network/filesystem toggle — a policy module
// never gets either.
type Config struct {
	MemoryLimitBytes uint64
	CPUTimeLimit     time.Duration
}

func DefaultConfig() Config {
	return Config{MemoryLimitBytes: 16 * 1024 * 1024, CPUTimeLimit: 2 * time.Second}
}

// Verdict is the JSON shape a policy module must write to stdout.
type Verdict struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Evaluator runs compiled WASM policy modules under wazero,
// deny-by-default: no filesystem, no network, no env vars, no random
// source, no high-resolution timer.
type Evaluator struct {
	runtime wazero.Runtime
	modCfg  wazero.ModuleConfig
	limits  Config
}

func NewEvaluator(ctx context.Context, cfg Config) (*Evaluator, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitBytes > 0 {
		pages := uint32(cfg.MemoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, fmt.Errorf("wasmpolicy: instantiate WASI: %w", err)
	}

	modCfg := wazero.NewModuleConfig().
		WithName("uclse-policy").
		WithStartFunctions("_start")

	return &Evaluator{runtime: r, modCfg: modCfg, limits: cfg}, nil
}

// Evaluate runs wasmBytes with kwargs JSON-encoded on stdin and parses
// a Verdict from its stdout.
func (e *Evaluator) Evaluate(ctx context.Context, wasmBytes []byte, kwargs map[string]interface{}) (Verdict, error) {
	if e.limits.CPUTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.limits.CPUTimeLimit)
		defer cancel()
	}

	input, err := json.Marshal(kwargs)
	if err != nil {
		return Verdict{}, fmt.Errorf("wasmpolicy: marshal kwargs: %w", err)
	}

	var stdout, stderr bytes.Buffer
	modCfg := e.modCfg.
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return Verdict{}, fmt.Errorf("wasmpolicy: compile module: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, fmt.Errorf("wasmpolicy: evaluation timed out after %v", e.limits.CPUTimeLimit)
		}
		return Verdict{}, fmt.Errorf("wasmpolicy: instantiate module: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return Verdict{}, fmt.Errorf("wasmpolicy: module wrote to stderr: %s", stderr.String())
	}

	var v Verdict
	if err := json.Unmarshal(stdout.Bytes(), &v); err != nil {
		return Verdict{}, fmt.Errorf("wasmpolicy: parse verdict: %w", err)
	}
	return v, nil
}

// Close shuts down the wazero runtime.
func (e *Evaluator) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.runtime.Close(ctx)
}
