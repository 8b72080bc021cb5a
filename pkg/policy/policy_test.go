package policy_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/policy"
)

// minimalWASMModule is a hand-assembled no-op "_start" module (see
// pkg/policy/wasmpolicy's test for the byte-by-byte layout); it never
// writes a verdict to stdout, so it exercises the WASMInputPolicy
// wiring end to end without depending on a real policy module build.
var minimalWASMModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0a, 0x01, 0x06, 0x5f, 0x73, 0x74, 0x61, 0x72, 0x74, 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

func TestBinder_EmptyInputPolicy(t *testing.T) {
	b := policy.NewBinder()
	p, err := b.BindInput(contracts.PolicySpec{TypeTag: "EmptyInputPolicy", InitKwargs: map[string]interface{}{}})
	require.NoError(t, err)

	ok, _ := p.Admit(map[string]interface{}{})
	assert.True(t, ok)

	ok, reason := p.Admit(map[string]interface{}{"x": 1})
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestBinder_ExactMatchInputPolicy(t *testing.T) {
	b := policy.NewBinder()
	admitted := map[string]interface{}{"x": float64(1), "y": "foo"}
	p, err := b.BindInput(contracts.PolicySpec{TypeTag: "ExactMatchInputPolicy", InitKwargs: admitted})
	require.NoError(t, err)

	ok, _ := p.Admit(admitted)
	assert.True(t, ok)

	ok, _ = p.Admit(map[string]interface{}{"x": float64(2), "y": "foo"})
	assert.False(t, ok)
}

func TestBinder_UnknownTypeTag(t *testing.T) {
	b := policy.NewBinder()
	_, err := b.BindInput(contracts.PolicySpec{TypeTag: "NoSuchPolicy"})
	require.Error(t, err)
	var bindFailed *contracts.PolicyBindFailed
	assert.ErrorAs(t, err, &bindFailed)
}

func TestSingleExecutionExactOutput_AdmitsOnceThenRejects(t *testing.T) {
	b := policy.NewBinder()
	p, err := b.BindOutput(contracts.PolicySpec{TypeTag: "SingleExecutionExactOutput", InitKwargs: map[string]interface{}{}})
	require.NoError(t, err)

	ok, _ := p.Admit(42)
	require.True(t, ok)
	p.Advance(42)

	ok, reason := p.Admit(42)
	assert.False(t, ok)
	assert.Contains(t, reason, "exhausted")
}

func TestCELInputPolicy_EvaluatesExpression(t *testing.T) {
	b := policy.NewBinder()
	p, err := b.BindInput(contracts.PolicySpec{
		TypeTag:    "CELInputPolicy",
		InitKwargs: map[string]interface{}{"expression": `kwargs["n"] > 0.0`},
	})
	require.NoError(t, err)

	ok, _ := p.Admit(map[string]interface{}{"n": 5.0})
	assert.True(t, ok)

	ok, _ = p.Admit(map[string]interface{}{"n": -1.0})
	assert.False(t, ok)
}

func TestCELInputPolicy_RejectsUncompilableExpression(t *testing.T) {
	b := policy.NewBinder()
	_, err := b.BindInput(contracts.PolicySpec{
		TypeTag:    "CELInputPolicy",
		InitKwargs: map[string]interface{}{"expression": `kwargs[`},
	})
	require.Error(t, err)
}

func TestBinder_WASMInputPolicy(t *testing.T) {
	b := policy.NewBinder()
	p, err := b.BindInput(contracts.PolicySpec{
		TypeTag:    "WASMInputPolicy",
		InitKwargs: map[string]interface{}{"module_base64": base64.StdEncoding.EncodeToString(minimalWASMModule)},
	})
	require.NoError(t, err)

	// minimalWASMModule never writes a verdict, so admission fails —
	// this proves the bind-and-call path reaches the wasm runtime.
	ok, reason := p.Admit(map[string]interface{}{"n": 1.0})
	assert.False(t, ok)
	assert.Contains(t, reason, "wasm policy evaluation failed")
}

func TestPolicyState_RoundTrips(t *testing.T) {
	b := policy.NewBinder()
	p, err := b.BindOutput(contracts.PolicySpec{TypeTag: "SingleExecutionExactOutput", InitKwargs: map[string]interface{}{}})
	require.NoError(t, err)
	p.Advance(nil)

	state, err := p.State()
	require.NoError(t, err)

	reloaded, err := b.BindOutput(contracts.PolicySpec{TypeTag: "SingleExecutionExactOutput", State: state})
	require.NoError(t, err)

	ok, _ := reloaded.Admit(nil)
	assert.False(t, ok, "reloaded state must preserve that the single-use policy was already exhausted")
}
