package policy

import (
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/uclse/pkg/canonicalize"
)

// EmptyInputPolicy admits only calls made with no keyword arguments at
// all — the degenerate case for a function taking no data-bearing
// input.
type EmptyInputPolicy struct{}

func NewEmptyInputPolicy(map[string]interface{}) (InputPolicy, error) {
	return &EmptyInputPolicy{}, nil
}

func (p *EmptyInputPolicy) TypeTag() string { return "EmptyInputPolicy" }

func (p *EmptyInputPolicy) Admit(kwargs map[string]interface{}) (bool, string) {
	if len(kwargs) != 0 {
		return false, "EmptyInputPolicy admits no keyword arguments"
	}
	return true, ""
}

func (p *EmptyInputPolicy) Advance(map[string]interface{}) {}

func (p *EmptyInputPolicy) State() ([]byte, error) { return []byte("{}"), nil }

func (p *EmptyInputPolicy) LoadState([]byte) error { return nil }

// ExactMatchInputPolicy admits exactly the one argument shape it was
// constructed with — the values a submitter tested their function
// against at decoration time — and rejects every other shape,
// forever.
type ExactMatchInputPolicy struct {
	admittedHash string
}

func NewExactMatchInputPolicy(initKwargs map[string]interface{}) (InputPolicy, error) {
	hash, err := canonicalize.CanonicalHash(initKwargs)
	if err != nil {
		return nil, fmt.Errorf("hash exact-match init kwargs: %w", err)
	}
	return &ExactMatchInputPolicy{admittedHash: hash}, nil
}

func (p *ExactMatchInputPolicy) TypeTag() string { return "ExactMatchInputPolicy" }

func (p *ExactMatchInputPolicy) Admit(kwargs map[string]interface{}) (bool, string) {
	hash, err := canonicalize.CanonicalHash(kwargs)
	if err != nil {
		return false, fmt.Sprintf("hash call kwargs: %v", err)
	}
	if hash != p.admittedHash {
		return false, "call arguments do not match the approved argument shape"
	}
	return true, ""
}

func (p *ExactMatchInputPolicy) Advance(map[string]interface{}) {}

func (p *ExactMatchInputPolicy) State() ([]byte, error) {
	return json.Marshal(map[string]string{"admitted_hash": p.admittedHash})
}

func (p *ExactMatchInputPolicy) LoadState(data []byte) error {
	var s struct {
		AdmittedHash string `json:"admitted_hash"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.admittedHash = s.AdmittedHash
	return nil
}

var emptyObjectSchema = MustCompileSchema("empty-object", `{
	"type": "object",
	"additionalProperties": false
}`)

func registerBuiltins(b *Binder) {
	b.RegisterInputType("EmptyInputPolicy", emptyObjectSchema, NewEmptyInputPolicy)
	b.RegisterInputType("ExactMatchInputPolicy", nil, NewExactMatchInputPolicy)
	b.RegisterInputType("CELInputPolicy", celInputSchema, NewCELInputPolicy)
	b.RegisterInputType("WASMInputPolicy", wasmInputSchema, NewWASMInputPolicy)

	b.RegisterOutputType("SingleExecutionExactOutput", emptyObjectSchema, NewSingleExecutionExactOutput)
	b.RegisterOutputType("UnlimitedOutputPolicy", emptyObjectSchema, NewUnlimitedOutputPolicy)
}
