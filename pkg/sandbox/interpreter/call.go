package interpreter

import (
	"fmt"
	"go/ast"
)

func evalCall(m *Machine, e *ast.CallExpr, env *Env) interface{} {
	if sel, ok := e.Fun.(*ast.SelectorExpr); ok {
		recv, ok := sel.X.(*ast.Ident)
		if ok && recv.Name == "domain" {
			return evalDomainCall(m, sel.Sel.Name, e.Args, env)
		}
		panic(fmt.Errorf("unsupported selector call %s.%s", identName(sel.X), sel.Sel.Name))
	}

	id, ok := e.Fun.(*ast.Ident)
	if ok {
		if fn, handled := evalBuiltinCall(m, id.Name, e.Args, env); handled {
			return fn
		}
	}

	callee := eval(m, e.Fun, env)
	args := make([]interface{}, len(e.Args))
	for i, a := range e.Args {
		args[i] = eval(m, a, env)
	}
	return callValue(m, callee, args)
}

func callValue(m *Machine, callee interface{}, args []interface{}) interface{} {
	closure, ok := callee.(*Closure)
	if !ok {
		panic(fmt.Errorf("value of type %T is not callable", callee))
	}
	if len(args) != len(closure.Params) {
		panic(fmt.Errorf("function expects %d argument(s), got %d", len(closure.Params), len(args)))
	}
	callEnv := NewEnv(closure.Env)
	for i, name := range closure.Params {
		if name != "_" {
			callEnv.Define(name, args[i])
		}
	}
	result, err := Run(m, closure.Body, callEnv)
	if err != nil {
		panic(err)
	}
	return result
}

// evalDomainCall dispatches the four LocalDomainClient capability
// methods. Any other selector is rejected here too, independent of the
// static compile pass in pkg/sandbox.
func evalDomainCall(m *Machine, method string, rawArgs []ast.Expr, env *Env) interface{} {
	if m.Domain == nil {
		panic(fmt.Errorf("domain capability used but not provisioned for this execution"))
	}
	if !allowedDomainSelectors[method] {
		panic(fmt.Errorf("domain.%s is not a permitted capability", method))
	}

	switch method {
	case "init_progress":
		args := evalArgs(m, rawArgs, env)
		if len(args) != 1 {
			panic(fmt.Errorf("domain.init_progress expects 1 argument"))
		}
		m.Domain.InitProgress(toInt(args[0]))
		return nil
	case "set_progress":
		args := evalArgs(m, rawArgs, env)
		if len(args) != 1 {
			panic(fmt.Errorf("domain.set_progress expects 1 argument"))
		}
		m.Domain.SetProgress(toInt(args[0]))
		return nil
	case "increment_progress":
		by := int64(1)
		if args := evalArgs(m, rawArgs, env); len(args) == 1 {
			by = toInt(args[0])
		}
		m.Domain.IncrementProgress(by)
		return nil
	case "launch_job":
		if len(rawArgs) == 0 {
			panic(fmt.Errorf("domain.launch_job expects a nested-code reference argument"))
		}
		targetIdent, ok := rawArgs[0].(*ast.Ident)
		if !ok {
			panic(fmt.Errorf("domain.launch_job's first argument must identify a nested user code function"))
		}
		refVal, found := env.Get(targetIdent.Name)
		if !found {
			panic(fmt.Errorf("%q does not name an approved nested user code function", targetIdent.Name))
		}
		ref, ok := refVal.(NestedCodeRef)
		if !ok {
			panic(fmt.Errorf("%q does not name an approved nested user code function", targetIdent.Name))
		}
		kwargs := evalArgs(m, rawArgs[1:], env)
		job, err := m.Domain.LaunchJob(ref, kwargs)
		if err != nil {
			panic(err)
		}
		return job
	default:
		panic(fmt.Errorf("domain.%s is not a permitted capability", method))
	}
}

func evalArgs(m *Machine, rawArgs []ast.Expr, env *Env) []interface{} {
	args := make([]interface{}, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = eval(m, a, env)
	}
	return args
}

// evalBuiltinCall handles the Go built-ins the Normalizer's allowlist
// permits (len, append, print) that need special evaluation rules
// (print funnels through the Machine's shim rather than being a
// Closure value, append must not mutate its argument's backing slice
// out from under aliases). ok is false when name isn't one of these,
// signaling the caller to fall through to ordinary value-call
// evaluation.
func evalBuiltinCall(m *Machine, name string, rawArgs []ast.Expr, env *Env) (interface{}, bool) {
	switch name {
	case "print":
		if m.Print == nil {
			return nil, true
		}
		m.Print(evalArgs(m, rawArgs, env))
		return nil, true
	case "len":
		args := evalArgs(m, rawArgs, env)
		return int64(builtinLen(args[0])), true
	case "append":
		args := evalArgs(m, rawArgs, env)
		base, _ := args[0].([]interface{})
		out := make([]interface{}, len(base), len(base)+len(args)-1)
		copy(out, base)
		out = append(out, args[1:]...)
		return out, true
	default:
		return nil, false
	}
}

func builtinLen(v interface{}) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []interface{}:
		return len(t)
	case map[string]interface{}:
		return len(t)
	default:
		panic(fmt.Errorf("len: unsupported type %T", v))
	}
}
