package interpreter

import (
	"go/ast"
	"go/token"
	"time"
)

// Closure is a callable value produced by evaluating a *ast.FuncLit:
// the wrapper's own "__inner := func(...) {...}" statement, and any
// func literal the submitted body itself declares.
type Closure struct {
	Params []string
	Body   *ast.BlockStmt
	Env    *Env
}

// NestedCodeRef is the value the global scope binds a
// domain.launch_job target's bare identifier to: the identifier names
// an already-approved nested UserCode by its declared function name,
// never a runtime value, so it resolves to a reference rather than
// anything callable on its own.
type NestedCodeRef struct {
	Name   string
	CodeID string
}

// DomainCapabilities wires the sandbox's LocalDomainClient selector
// surface to the Runtime; it is the only way submitted code can touch
// anything outside its own AST evaluation, and the interpreter permits
// no selector on "domain" that isn't one of these four.
type DomainCapabilities struct {
	InitProgress      func(nIters int64)
	SetProgress       func(to int64)
	IncrementProgress func(by int64)
	LaunchJob         func(ref NestedCodeRef, args []interface{}) (interface{}, error)
}

// Machine carries the per-execution state shared across the whole
// statement/expression walk: gas accounting (one unit per AST node
// visited), the deadline derived from the budget's time limit, the
// print shim, and the domain capability set (nil when the wrapper
// does not declare a "domain" parameter).
type Machine struct {
	Budget  Budget
	Gas     uint64
	Start   time.Time
	Print   func(args []interface{})
	Domain  *DomainCapabilities
	Globals *Env

	// Fset/LastPos let a failing execution report which source line it
	// was on when it failed, the same line traceback_from_error needs
	// to frame a window around — tracked here rather than threaded
	// through every eval/exec call's return value.
	Fset    *token.FileSet
	LastPos token.Pos
}

// Line resolves LastPos to a 1-based source line number, or 0 if no
// position has been recorded yet (Fset is nil, e.g. in tests that
// build a Machine without wiring source position tracking).
func (m *Machine) Line() int {
	if m.Fset == nil || m.LastPos == token.NoPos {
		return 0
	}
	return m.Fset.Position(m.LastPos).Line
}

// Budget is the subset of sandbox.ComputeBudget the interpreter needs;
// declared locally so this package does not import its own caller.
type Budget struct {
	GasLimitSteps uint64
	TimeLimitMs   int64
}

// Tick charges one unit of gas for the AST node currently being
// evaluated and checks both the gas and wall-clock limits, returning a
// BudgetError the moment either is exceeded.
func (m *Machine) Tick() error {
	m.Gas++
	if m.Gas > m.Budget.GasLimitSteps {
		return &BudgetError{Kind: "gas", Limit: int64(m.Budget.GasLimitSteps), Consumed: int64(m.Gas)}
	}
	if elapsed := time.Since(m.Start); elapsed.Milliseconds() > m.Budget.TimeLimitMs {
		return &BudgetError{Kind: "time", Limit: m.Budget.TimeLimitMs, Consumed: elapsed.Milliseconds()}
	}
	return nil
}

// BudgetError is raised mid-walk when Tick trips a limit.
type BudgetError struct {
	Kind     string
	Limit    int64
	Consumed int64
}

func (e *BudgetError) Error() string {
	return "compute budget exceeded (" + e.Kind + ")"
}
