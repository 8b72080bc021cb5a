package policy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/uclse/pkg/policy/wasmpolicy"
)

// WASMInputPolicy admits a call iff a precompiled WebAssembly policy
// module, given the call's kwargs on stdin, writes an {"allow":true}
// verdict on stdout. Unlike CELInputPolicy, the admission rule here
// is an opaque compiled module rather than an inline expression, so
// it is wired through pkg/policy/wasmpolicy's wazero-based evaluator
// instead of being interpreted in-process.
type WASMInputPolicy struct {
	moduleB64 string
	module    []byte
	eval      *wasmpolicy.Evaluator
}

var wasmInputSchema = MustCompileSchema("wasm-input-policy", `{
	"type": "object",
	"properties": {
		"module_base64": {"type": "string", "minLength": 1}
	},
	"required": ["module_base64"],
	"additionalProperties": false
}`)

// NewWASMInputPolicy decodes and readies a compiled module at bind
// time; a malformed module surfaces as a PolicyBindFailed rather than
// a per-call error.
func NewWASMInputPolicy(initKwargs map[string]interface{}) (InputPolicy, error) {
	b64, _ := initKwargs["module_base64"].(string)
	module, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode wasm module: %w", err)
	}
	eval, err := wasmpolicy.NewEvaluator(context.Background(), wasmpolicy.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("start wasm evaluator: %w", err)
	}
	return &WASMInputPolicy{moduleB64: b64, module: module, eval: eval}, nil
}

func (p *WASMInputPolicy) TypeTag() string { return "WASMInputPolicy" }

func (p *WASMInputPolicy) Admit(kwargs map[string]interface{}) (bool, string) {
	verdict, err := p.eval.Evaluate(context.Background(), p.module, kwargs)
	if err != nil {
		return false, fmt.Sprintf("wasm policy evaluation failed: %v", err)
	}
	if !verdict.Allow {
		reason := verdict.Reason
		if reason == "" {
			reason = "rejected by wasm input policy"
		}
		return false, reason
	}
	return true, ""
}

func (p *WASMInputPolicy) Advance(map[string]interface{}) {}

func (p *WASMInputPolicy) State() ([]byte, error) {
	return json.Marshal(map[string]string{"module_base64": p.moduleB64})
}

func (p *WASMInputPolicy) LoadState(data []byte) error {
	var s struct {
		ModuleBase64 string `json:"module_base64"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.ModuleBase64 == "" {
		return nil
	}
	reloaded, err := NewWASMInputPolicy(map[string]interface{}{"module_base64": s.ModuleBase64})
	if err != nil {
		return err
	}
	*p = *reloaded.(*WASMInputPolicy)
	return nil
}
