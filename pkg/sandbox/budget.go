// Package sandbox is the Sandbox Runtime: it executes one UserCode
// wrapper's canonical AST under a restricted tree-walking interpreter
// (pkg/sandbox/interpreter), enforcing compute budgets, policy
// admission, and the LocalDomainClient capability boundary, and
// returns a captured ExecutionResult rather than letting the code
// reach any real process, file, or network handle.
package sandbox

import (
	"fmt"

	"github.com/Mindburn-Labs/uclse/pkg/sandbox/interpreter"
)

// ComputeBudget bounds one execution: gas (AST nodes evaluated), wall
// time, and memory. The interpreter's Go values have no linear memory
// to meter, so MemoryLimitBytes is recorded and reported but not
// independently enforced; gas and wall time are.
type ComputeBudget struct {
	GasLimitSteps    uint64 `json:"gas_limit_steps"`
	TimeLimitMs      int64  `json:"time_limit_ms"`
	MemoryLimitBytes int64  `json:"memory_limit_bytes"`
}

// DefaultBudget gives generous headroom for the small functions
// submitters actually send while still catching runaway loops
// quickly; a tree-walking interpreter burns many steps per unit of
// real work, so the gas ceiling is sized to step counts, not
// instructions.
func DefaultBudget() ComputeBudget {
	return ComputeBudget{
		GasLimitSteps:    200_000,
		TimeLimitMs:      5000,
		MemoryLimitBytes: 64 * 1024 * 1024,
	}
}

const (
	ErrComputeGasExhausted  = "ERR_COMPUTE_GAS_EXHAUSTED"
	ErrComputeTimeExhausted = "ERR_COMPUTE_TIME_EXHAUSTED"
)

// ComputeBudgetError is a typed budget violation, wrapped in a
// contracts.RuntimeError at the Runtime boundary.
type ComputeBudgetError struct {
	Code     string
	Message  string
	Limit    int64
	Consumed int64
}

func (e *ComputeBudgetError) Error() string {
	return fmt.Sprintf("%s: %s (limit=%d, consumed=%d)", e.Code, e.Message, e.Limit, e.Consumed)
}

// budgetErrorFrom lifts the interpreter's mid-walk budget trip into
// the typed error the runtime surfaces, mapping the trip kind onto the
// stable error codes above.
func budgetErrorFrom(e *interpreter.BudgetError) *ComputeBudgetError {
	code := ErrComputeGasExhausted
	message := "gas step limit exceeded"
	if e.Kind == "time" {
		code = ErrComputeTimeExhausted
		message = "time limit exceeded"
	}
	return &ComputeBudgetError{
		Code:     code,
		Message:  message,
		Limit:    e.Limit,
		Consumed: e.Consumed,
	}
}
