// Package interpreter is the restricted tree-walking evaluator the
// Sandbox Runtime uses to run one normalized UserCode wrapper's
// go/ast.FuncDecl body directly — no go/build, no compiled binary, no
// OS process. It only ever sees the output of pkg/codeparse's
// Normalize, so the AST shapes it must handle are bounded by what that
// package already accepted.
package interpreter

import "fmt"

// Env is a lexical scope: a map of bindings with a parent pointer,
// exactly the nested-scope shape a block-structured language needs and
// nothing more (no heap-of-objects, no pointer aliasing across scopes
// beyond Go's own map/slice reference semantics).
type Env struct {
	vars   map[string]interface{}
	parent *Env
}

func NewEnv(parent *Env) *Env {
	return &Env{vars: map[string]interface{}{}, parent: parent}
}

// Get resolves name up the scope chain.
func (e *Env) Get(name string) (interface{}, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Define binds name in the current scope (used for := and function
// parameters), shadowing any outer binding of the same name.
func (e *Env) Define(name string, val interface{}) {
	e.vars[name] = val
}

// Assign mutates the nearest existing binding of name (used for
// plain =), returning an error if no such binding exists — Go itself
// rejects assignment to an undeclared name, and the static Compile
// pass should catch this before Assign is ever reached at eval time.
func (e *Env) Assign(name string, val interface{}) error {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = val
			return nil
		}
	}
	return fmt.Errorf("assignment to undeclared name %q", name)
}
