package policy

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
)

// CELInputPolicy admits a call iff a stored CEL boolean expression
// evaluates true against its kwargs — a pluggable admission rule that
// needs no submitted policy code. Each bound instance carries its own
// compiled program.
type CELInputPolicy struct {
	expression string
	program    cel.Program
}

var celEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("kwargs", types.NewMapType(types.StringType, types.DynType)),
		),
	)
	if err != nil {
		panic(fmt.Sprintf("policy: failed to build CEL environment: %v", err))
	}
	return env
}()

var celInputSchema = MustCompileSchema("cel-input-policy", `{
	"type": "object",
	"properties": {
		"expression": {"type": "string", "minLength": 1}
	},
	"required": ["expression"],
	"additionalProperties": false
}`)

// NewCELInputPolicy compiles initKwargs["expression"] once at bind
// time; a compile failure is a PolicyBindFailed, not a per-call error.
func NewCELInputPolicy(initKwargs map[string]interface{}) (InputPolicy, error) {
	expr, _ := initKwargs["expression"].(string)
	ast, issues := celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL policy compilation failed: %w", issues.Err())
	}
	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL policy program construction failed: %w", err)
	}
	return &CELInputPolicy{expression: expr, program: prg}, nil
}

func (p *CELInputPolicy) TypeTag() string { return "CELInputPolicy" }

func (p *CELInputPolicy) Admit(kwargs map[string]interface{}) (bool, string) {
	out, _, err := p.program.Eval(map[string]interface{}{"kwargs": kwargs})
	if err != nil {
		return false, fmt.Sprintf("CEL evaluation error: %v", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok || !allowed {
		return false, "rejected by CEL input policy expression"
	}
	return true, ""
}

func (p *CELInputPolicy) Advance(map[string]interface{}) {}

func (p *CELInputPolicy) State() ([]byte, error) {
	return json.Marshal(map[string]string{"expression": p.expression})
}

func (p *CELInputPolicy) LoadState(data []byte) error {
	var s struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Expression == "" {
		return nil
	}
	recompiled, err := NewCELInputPolicy(map[string]interface{}{"expression": s.Expression})
	if err != nil {
		return err
	}
	*p = *recompiled.(*CELInputPolicy)
	return nil
}
