// Package policy implements the Policy Binder: resolving an input or
// output policy reference to a concrete, schema-validated instance,
// and the built-in policy types approval-gated code is bound to.
//
// Each policy type publishes an explicit JSON Schema describing its
// valid init kwargs; the Binder validates against that descriptor
// before construction, never by reflecting over constructor
// signatures.
package policy

import (
	"fmt"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// InputPolicy decides whether a call's arguments match what was
// approved, and advances its own state on a successful call.
type InputPolicy interface {
	TypeTag() string
	// Admit checks kwargs against the policy's bound state. It must not
	// mutate state if it returns false.
	Admit(kwargs map[string]interface{}) (bool, string)
	// Advance commits state changes after a successful call.
	Advance(kwargs map[string]interface{})
	State() ([]byte, error)
	LoadState(data []byte) error
}

// OutputPolicy decides whether a newly produced result may be
// returned, and advances its own state on a successful call.
type OutputPolicy interface {
	TypeTag() string
	Admit(result interface{}) (bool, string)
	Advance(result interface{})
	State() ([]byte, error)
	LoadState(data []byte) error
}

// Factory constructs a fresh policy instance from validated init
// kwargs. Registered per type tag in a Binder.
type InputFactory func(initKwargs map[string]interface{}) (InputPolicy, error)
type OutputFactory func(initKwargs map[string]interface{}) (OutputPolicy, error)

// Binder resolves policy references (a built-in type tag, for now —
// UserPolicy-by-id resolution is layered on top by pkg/usercode, which
// has the store Binder itself does not) to concrete instances, schema-
// validating init kwargs before construction.
type Binder struct {
	inputSchemas  map[string]*Schema
	inputFactory  map[string]InputFactory
	outputSchemas map[string]*Schema
	outputFactory map[string]OutputFactory
}

// NewBinder returns a Binder pre-registered with the built-in policy
// types (pkg/policy/builtin_input.go, builtin_output.go).
func NewBinder() *Binder {
	b := &Binder{
		inputSchemas:  map[string]*Schema{},
		inputFactory:  map[string]InputFactory{},
		outputSchemas: map[string]*Schema{},
		outputFactory: map[string]OutputFactory{},
	}
	registerBuiltins(b)
	return b
}

func (b *Binder) RegisterInputType(tag string, schema *Schema, factory InputFactory) {
	b.inputSchemas[tag] = schema
	b.inputFactory[tag] = factory
}

func (b *Binder) RegisterOutputType(tag string, schema *Schema, factory OutputFactory) {
	b.outputSchemas[tag] = schema
	b.outputFactory[tag] = factory
}

// BindInput resolves spec into a concrete InputPolicy, validating
// InitKwargs against the type's schema first. The Binder itself runs no
// policy code — only registered types (built-in, CEL, WASM) reach here.
func (b *Binder) BindInput(spec contracts.PolicySpec) (InputPolicy, error) {
	schema, ok := b.inputSchemas[spec.TypeTag]
	if !ok {
		return nil, &contracts.PolicyBindFailed{Reason: fmt.Sprintf("unknown input policy type %q", spec.TypeTag)}
	}
	if err := schema.Validate(spec.InitKwargs); err != nil {
		return nil, &contracts.PolicyBindFailed{Reason: fmt.Sprintf("init kwargs for %q: %v", spec.TypeTag, err)}
	}
	instance, err := b.inputFactory[spec.TypeTag](spec.InitKwargs)
	if err != nil {
		return nil, &contracts.PolicyBindFailed{Reason: err.Error()}
	}
	if len(spec.State) > 0 {
		if err := instance.LoadState(spec.State); err != nil {
			return nil, &contracts.PolicyBindFailed{Reason: fmt.Sprintf("load state: %v", err)}
		}
	}
	return instance, nil
}

// BindOutput mirrors BindInput for output policies.
func (b *Binder) BindOutput(spec contracts.PolicySpec) (OutputPolicy, error) {
	schema, ok := b.outputSchemas[spec.TypeTag]
	if !ok {
		return nil, &contracts.PolicyBindFailed{Reason: fmt.Sprintf("unknown output policy type %q", spec.TypeTag)}
	}
	if err := schema.Validate(spec.InitKwargs); err != nil {
		return nil, &contracts.PolicyBindFailed{Reason: fmt.Sprintf("init kwargs for %q: %v", spec.TypeTag, err)}
	}
	instance, err := b.outputFactory[spec.TypeTag](spec.InitKwargs)
	if err != nil {
		return nil, &contracts.PolicyBindFailed{Reason: err.Error()}
	}
	if len(spec.State) > 0 {
		if err := instance.LoadState(spec.State); err != nil {
			return nil, &contracts.PolicyBindFailed{Reason: fmt.Sprintf("load state: %v", err)}
		}
	}
	return instance, nil
}

// InitialInputState serializes a freshly bound policy's state for
// persistence. The Binder always produces concrete state at bind
// time; a zero-length state blob only ever appears on records loaded
// from older layouts, and is replaced with the real initial value on
// first read.
func InitialInputState(p InputPolicy) ([]byte, error) {
	return p.State()
}

func InitialOutputState(p OutputPolicy) ([]byte, error) {
	return p.State()
}
