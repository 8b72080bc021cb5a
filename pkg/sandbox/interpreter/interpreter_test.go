package interpreter

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func parseBody(t *testing.T, funcSrc string) *ast.BlockStmt {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", "package p\n\n"+funcSrc, parser.AllErrors)
	require.NoError(t, err)
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok {
			return fd.Body
		}
	}
	t.Fatal("no function declaration found")
	return nil
}

func newMachine() *Machine {
	return &Machine{
		Budget: Budget{GasLimitSteps: 100000, TimeLimitMs: 5000},
		Start:  time.Now(),
	}
}

func TestArithmeticAndReturn(t *testing.T) {
	body := parseBody(t, `func f(x int, y int) int {
		z := x + y*2
		return z
	}`)
	env := NewEnv(nil)
	env.Define("x", int64(3))
	env.Define("y", int64(4))

	result, err := Run(newMachine(), body, env)
	require.NoError(t, err)
	require.Equal(t, int64(11), result)
}

func TestIfElse(t *testing.T) {
	body := parseBody(t, `func f(x int) int {
		if x > 10 {
			return 1
		} else {
			return 0
		}
	}`)
	env := NewEnv(nil)
	env.Define("x", int64(20))
	result, err := Run(newMachine(), body, env)
	require.NoError(t, err)
	require.Equal(t, int64(1), result)
}

func TestForLoopAccumulates(t *testing.T) {
	body := parseBody(t, `func f(n int) int {
		total := 0
		for i := 0; i < n; i++ {
			total += i
		}
		return total
	}`)
	env := NewEnv(nil)
	env.Define("n", int64(5))
	result, err := Run(newMachine(), body, env)
	require.NoError(t, err)
	require.Equal(t, int64(10), result) // 0+1+2+3+4
}

func TestRangeOverSlice(t *testing.T) {
	body := parseBody(t, `func f(xs []int) int {
		total := 0
		for _, v := range xs {
			total += v
		}
		return total
	}`)
	env := NewEnv(nil)
	env.Define("xs", []interface{}{int64(1), int64(2), int64(3)})
	result, err := Run(newMachine(), body, env)
	require.NoError(t, err)
	require.Equal(t, int64(6), result)
}

func TestClosureCall(t *testing.T) {
	body := parseBody(t, `func f(x int) int {
		double := func(n int) int { return n * 2 }
		return double(x)
	}`)
	env := NewEnv(nil)
	env.Define("x", int64(5))
	result, err := Run(newMachine(), body, env)
	require.NoError(t, err)
	require.Equal(t, int64(10), result)
}

func TestPrintShimInvoked(t *testing.T) {
	body := parseBody(t, `func f(x int) int {
		print(x)
		return x
	}`)
	var captured []interface{}
	m := newMachine()
	m.Print = func(args []interface{}) { captured = args }
	env := NewEnv(nil)
	env.Define("x", int64(7))
	_, err := Run(m, body, env)
	require.NoError(t, err)
	require.Equal(t, []interface{}{int64(7)}, captured)
}

func TestDomainInitAndIncrementProgress(t *testing.T) {
	body := parseBody(t, `func f(domain int) int {
		domain.init_progress(3)
		domain.increment_progress(1)
		domain.increment_progress(1)
		return 1
	}`)
	var inited, incremented int64
	m := newMachine()
	m.Domain = &DomainCapabilities{
		InitProgress:      func(n int64) { inited = n },
		IncrementProgress: func(by int64) { incremented += by },
	}
	env := NewEnv(nil)
	env.Define("domain", nil)
	_, err := Run(m, body, env)
	require.NoError(t, err)
	require.Equal(t, int64(3), inited)
	require.Equal(t, int64(2), incremented)
}

func TestLaunchJobResolvesNestedRef(t *testing.T) {
	body := parseBody(t, `func f(domain int) int {
		job := domain.launch_job(nested_func, 42)
		_ = job
		return 1
	}`)
	var gotArgs []interface{}
	m := newMachine()
	m.Domain = &DomainCapabilities{
		LaunchJob: func(ref NestedCodeRef, args []interface{}) (interface{}, error) {
			gotArgs = args
			require.Equal(t, "nested_func", ref.Name)
			return "job-handle", nil
		},
	}
	globals := NewEnv(nil)
	globals.Define("nested_func", NestedCodeRef{Name: "nested_func", CodeID: "code-1"})
	env := NewEnv(globals)
	env.Define("domain", nil)
	_, err := Run(m, body, env)
	require.NoError(t, err)
	require.Equal(t, []interface{}{int64(42)}, gotArgs)
}

func TestDisallowedDomainSelectorRejectedAtRuntime(t *testing.T) {
	body := parseBody(t, `func f(domain int) int {
		domain.delete_everything()
		return 1
	}`)
	m := newMachine()
	m.Domain = &DomainCapabilities{}
	env := NewEnv(nil)
	env.Define("domain", nil)
	_, err := Run(m, body, env)
	require.Error(t, err)
}

func TestGasBudgetExhausted(t *testing.T) {
	body := parseBody(t, `func f(n int) int {
		total := 0
		for i := 0; i < n; i++ {
			total += i
		}
		return total
	}`)
	m := &Machine{Budget: Budget{GasLimitSteps: 5, TimeLimitMs: 5000}, Start: time.Now()}
	env := NewEnv(nil)
	env.Define("n", int64(1000000))
	_, err := Run(m, body, env)
	require.Error(t, err)
	var budgetErr *BudgetError
	require.ErrorAs(t, err, &budgetErr)
	require.Equal(t, "gas", budgetErr.Kind)
}
