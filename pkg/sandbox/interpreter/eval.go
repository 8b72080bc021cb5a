package interpreter

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
	"strings"
)

// allowedDomainSelectors is the closed set of methods the interpreter
// will dispatch a domain.<name>(...) call to; anything else is a
// RuntimeError here even though the static compile pass (pkg/sandbox)
// refuses it first.
var allowedDomainSelectors = map[string]bool{
	"init_progress":      true,
	"set_progress":       true,
	"increment_progress": true,
	"launch_job":         true,
}

// returnSignal/breakSignal/continueSignal are control-flow carriers
// propagated via panic/recover, the idiomatic shape for a tree-walking
// interpreter whose host language (Go) has no first-class
// non-local-exit primitive that composes with ordinary function
// return values the way these three need to.
type returnSignal struct{ value interface{} }
type breakSignal struct{}
type continueSignal struct{}

// Run executes fn's body (the canonical wrapper shape, or any
// FuncLit/closure body) with paramEnv already holding its parameter
// bindings, and returns its single return value.
func Run(m *Machine, body *ast.BlockStmt, env *Env) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch sig := r.(type) {
			case returnSignal:
				result = sig.value
				err = nil
			case error:
				err = sig
			default:
				err = fmt.Errorf("panic during execution: %v", r)
			}
		}
	}()
	execBlock(m, body, env)
	return nil, nil
}

func execBlock(m *Machine, body *ast.BlockStmt, env *Env) {
	for _, stmt := range body.List {
		execStmt(m, stmt, env)
	}
}

func tick(m *Machine, pos ast.Node) {
	m.LastPos = pos.Pos()
	if err := m.Tick(); err != nil {
		panic(err)
	}
}

func execStmt(m *Machine, stmt ast.Stmt, env *Env) {
	tick(m, stmt)
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		eval(m, s.X, env)
	case *ast.AssignStmt:
		execAssign(m, s, env)
	case *ast.DeclStmt:
		execDecl(m, s, env)
	case *ast.IfStmt:
		execIf(m, s, env)
	case *ast.ForStmt:
		execFor(m, s, env)
	case *ast.RangeStmt:
		execRange(m, s, env)
	case *ast.ReturnStmt:
		var val interface{}
		if len(s.Results) == 1 {
			val = eval(m, s.Results[0], env)
		} else if len(s.Results) > 1 {
			panic(fmt.Errorf("multi-value return not supported"))
		}
		panic(returnSignal{value: val})
	case *ast.BranchStmt:
		switch s.Tok {
		case token.BREAK:
			panic(breakSignal{})
		case token.CONTINUE:
			panic(continueSignal{})
		default:
			panic(fmt.Errorf("unsupported branch statement %s", s.Tok))
		}
	case *ast.BlockStmt:
		execBlock(m, s, NewEnv(env))
	case *ast.IncDecStmt:
		execIncDec(m, s, env)
	default:
		panic(fmt.Errorf("unsupported statement type %T", stmt))
	}
}

func execIncDec(m *Machine, s *ast.IncDecStmt, env *Env) {
	id, ok := s.X.(*ast.Ident)
	if !ok {
		panic(fmt.Errorf("inc/dec target must be a plain identifier"))
	}
	cur, ok := env.Get(id.Name)
	if !ok {
		panic(fmt.Errorf("undefined name %q", id.Name))
	}
	delta := int64(1)
	if s.Tok == token.DEC {
		delta = -1
	}
	if err := env.Assign(id.Name, addNumeric(cur, delta)); err != nil {
		panic(err)
	}
}

func execAssign(m *Machine, s *ast.AssignStmt, env *Env) {
	if s.Tok == token.DEFINE {
		if len(s.Lhs) != len(s.Rhs) {
			panic(fmt.Errorf("mismatched assignment arity"))
		}
		for i, lhs := range s.Lhs {
			id, ok := lhs.(*ast.Ident)
			if !ok {
				panic(fmt.Errorf("define target must be a plain identifier"))
			}
			val := eval(m, s.Rhs[i], env)
			if id.Name != "_" {
				env.Define(id.Name, val)
			}
		}
		return
	}

	if s.Tok == token.ASSIGN {
		if len(s.Lhs) != len(s.Rhs) {
			panic(fmt.Errorf("mismatched assignment arity"))
		}
		for i, lhs := range s.Lhs {
			assignOne(m, lhs, eval(m, s.Rhs[i], env), env)
		}
		return
	}

	// Compound assignment: x += rhs, etc.
	op, ok := compoundOp(s.Tok)
	if !ok {
		panic(fmt.Errorf("unsupported assignment operator %s", s.Tok))
	}
	id, ok := s.Lhs[0].(*ast.Ident)
	if !ok {
		panic(fmt.Errorf("compound assignment target must be a plain identifier"))
	}
	cur, found := env.Get(id.Name)
	if !found {
		panic(fmt.Errorf("undefined name %q", id.Name))
	}
	rhs := eval(m, s.Rhs[0], env)
	if err := env.Assign(id.Name, applyBinary(op, cur, rhs)); err != nil {
		panic(err)
	}
}

func assignOne(m *Machine, lhs ast.Expr, val interface{}, env *Env) {
	switch l := lhs.(type) {
	case *ast.Ident:
		if l.Name == "_" {
			return
		}
		if err := env.Assign(l.Name, val); err != nil {
			panic(err)
		}
	case *ast.IndexExpr:
		container := eval(m, l.X, env)
		key := eval(m, l.Index, env)
		switch c := container.(type) {
		case map[string]interface{}:
			c[fmt.Sprintf("%v", key)] = val
		case []interface{}:
			idx := toInt(key)
			if idx < 0 || idx >= int64(len(c)) {
				panic(fmt.Errorf("index out of range: %d", idx))
			}
			c[idx] = val
		default:
			panic(fmt.Errorf("cannot index-assign into %T", container))
		}
	default:
		panic(fmt.Errorf("unsupported assignment target %T", lhs))
	}
}

func compoundOp(tok token.Token) (token.Token, bool) {
	switch tok {
	case token.ADD_ASSIGN:
		return token.ADD, true
	case token.SUB_ASSIGN:
		return token.SUB, true
	case token.MUL_ASSIGN:
		return token.MUL, true
	case token.QUO_ASSIGN:
		return token.QUO, true
	case token.REM_ASSIGN:
		return token.REM, true
	default:
		return 0, false
	}
}

func execDecl(m *Machine, s *ast.DeclStmt, env *Env) {
	gd, ok := s.Decl.(*ast.GenDecl)
	if !ok || gd.Tok != token.VAR {
		panic(fmt.Errorf("unsupported declaration"))
	}
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for i, name := range vs.Names {
			var val interface{}
			if i < len(vs.Values) {
				val = eval(m, vs.Values[i], env)
			} else {
				val = zeroValueFor(vs.Type)
			}
			if name.Name != "_" {
				env.Define(name.Name, val)
			}
		}
	}
}

func zeroValueFor(t ast.Expr) interface{} {
	id, ok := t.(*ast.Ident)
	if !ok {
		return nil
	}
	switch id.Name {
	case "int", "int32", "int64":
		return int64(0)
	case "float32", "float64":
		return float64(0)
	case "string":
		return ""
	case "bool":
		return false
	default:
		return nil
	}
}

func execIf(m *Machine, s *ast.IfStmt, env *Env) {
	ifEnv := NewEnv(env)
	if s.Init != nil {
		execStmt(m, s.Init, ifEnv)
	}
	if truthy(eval(m, s.Cond, ifEnv)) {
		execBlock(m, s.Body, NewEnv(ifEnv))
		return
	}
	switch els := s.Else.(type) {
	case *ast.BlockStmt:
		execBlock(m, els, NewEnv(ifEnv))
	case *ast.IfStmt:
		execIf(m, els, ifEnv)
	}
}

func execFor(m *Machine, s *ast.ForStmt, env *Env) {
	forEnv := NewEnv(env)
	if s.Init != nil {
		execStmt(m, s.Init, forEnv)
	}
	for {
		if s.Cond != nil && !truthy(eval(m, s.Cond, forEnv)) {
			return
		}
		if runLoopBody(m, s.Body, forEnv) {
			return
		}
		if s.Post != nil {
			execStmt(m, s.Post, forEnv)
		}
	}
}

// runLoopBody executes one loop iteration's body, catching
// break/continue at this level, and reports whether the loop should
// stop entirely (break).
func runLoopBody(m *Machine, body *ast.BlockStmt, env *Env) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			switch r.(type) {
			case breakSignal:
				stop = true
			case continueSignal:
				stop = false
			default:
				panic(r)
			}
		}
	}()
	execBlock(m, body, NewEnv(env))
	return false
}

func execRange(m *Machine, s *ast.RangeStmt, env *Env) {
	rangeEnv := NewEnv(env)
	target := eval(m, s.X, rangeEnv)

	bindIter := func(iterEnv *Env, key, value interface{}) {
		if s.Key != nil {
			if id, ok := s.Key.(*ast.Ident); ok && id.Name != "_" {
				iterEnv.Define(id.Name, key)
			}
		}
		if s.Value != nil {
			if id, ok := s.Value.(*ast.Ident); ok && id.Name != "_" {
				iterEnv.Define(id.Name, value)
			}
		}
	}

	switch coll := target.(type) {
	case []interface{}:
		for i, v := range coll {
			iterEnv := NewEnv(rangeEnv)
			bindIter(iterEnv, int64(i), v)
			if runLoopBody(m, s.Body, iterEnv) {
				return
			}
		}
	case map[string]interface{}:
		for k, v := range coll {
			iterEnv := NewEnv(rangeEnv)
			bindIter(iterEnv, k, v)
			if runLoopBody(m, s.Body, iterEnv) {
				return
			}
		}
	case string:
		for i, r := range coll {
			iterEnv := NewEnv(rangeEnv)
			bindIter(iterEnv, int64(i), int64(r))
			if runLoopBody(m, s.Body, iterEnv) {
				return
			}
		}
	default:
		panic(fmt.Errorf("cannot range over %T", target))
	}
}

func eval(m *Machine, expr ast.Expr, env *Env) interface{} {
	tick(m, expr)
	switch e := expr.(type) {
	case *ast.BasicLit:
		return evalBasicLit(e)
	case *ast.Ident:
		return evalIdent(e, env)
	case *ast.ParenExpr:
		return eval(m, e.X, env)
	case *ast.UnaryExpr:
		return evalUnary(m, e, env)
	case *ast.BinaryExpr:
		return evalBinary(m, e, env)
	case *ast.CallExpr:
		return evalCall(m, e, env)
	case *ast.SelectorExpr:
		panic(fmt.Errorf("selector expression %s.%s is not callable here", identName(e.X), e.Sel.Name))
	case *ast.CompositeLit:
		return evalCompositeLit(m, e, env)
	case *ast.IndexExpr:
		return evalIndex(m, e, env)
	case *ast.FuncLit:
		return &Closure{Params: fieldListNames(e.Type.Params), Body: e.Body, Env: env}
	case *ast.KeyValueExpr:
		return eval(m, e.Value, env)
	default:
		panic(fmt.Errorf("unsupported expression type %T", expr))
	}
}

func identName(e ast.Expr) string {
	if id, ok := e.(*ast.Ident); ok {
		return id.Name
	}
	return "<expr>"
}

func evalBasicLit(lit *ast.BasicLit) interface{} {
	switch lit.Kind {
	case token.INT:
		v, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			panic(fmt.Errorf("invalid integer literal %q: %w", lit.Value, err))
		}
		return v
	case token.FLOAT:
		v, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			panic(fmt.Errorf("invalid float literal %q: %w", lit.Value, err))
		}
		return v
	case token.STRING:
		v, err := strconv.Unquote(lit.Value)
		if err != nil {
			panic(fmt.Errorf("invalid string literal %q: %w", lit.Value, err))
		}
		return v
	case token.CHAR:
		v, _, _, err := strconv.UnquoteChar(strings.Trim(lit.Value, "'"), '\'')
		if err != nil {
			panic(fmt.Errorf("invalid char literal %q: %w", lit.Value, err))
		}
		return int64(v)
	default:
		panic(fmt.Errorf("unsupported literal kind %v", lit.Kind))
	}
}

func evalIdent(id *ast.Ident, env *Env) interface{} {
	switch id.Name {
	case "true":
		return true
	case "false":
		return false
	case "nil":
		return nil
	}
	if v, ok := env.Get(id.Name); ok {
		return v
	}
	panic(fmt.Errorf("undefined name %q", id.Name))
}

func evalUnary(m *Machine, e *ast.UnaryExpr, env *Env) interface{} {
	v := eval(m, e.X, env)
	switch e.Op {
	case token.SUB:
		return negate(v)
	case token.NOT:
		return !truthy(v)
	case token.ADD:
		return v
	default:
		panic(fmt.Errorf("unsupported unary operator %s", e.Op))
	}
}

func evalBinary(m *Machine, e *ast.BinaryExpr, env *Env) interface{} {
	if e.Op == token.LAND {
		left := eval(m, e.X, env)
		if !truthy(left) {
			return false
		}
		return truthy(eval(m, e.Y, env))
	}
	if e.Op == token.LOR {
		left := eval(m, e.X, env)
		if truthy(left) {
			return true
		}
		return truthy(eval(m, e.Y, env))
	}
	left := eval(m, e.X, env)
	right := eval(m, e.Y, env)
	return applyBinary(e.Op, left, right)
}

func evalCompositeLit(m *Machine, e *ast.CompositeLit, env *Env) interface{} {
	switch t := e.Type.(type) {
	case *ast.ArrayType:
		out := make([]interface{}, 0, len(e.Elts))
		for _, elt := range e.Elts {
			out = append(out, eval(m, elt, env))
		}
		return out
	case *ast.MapType:
		out := map[string]interface{}{}
		for _, elt := range e.Elts {
			kv := elt.(*ast.KeyValueExpr)
			key := eval(m, kv.Key, env)
			out[fmt.Sprintf("%v", key)] = eval(m, kv.Value, env)
		}
		return out
	default:
		_ = t
		panic(fmt.Errorf("unsupported composite literal type %T", e.Type))
	}
}

func evalIndex(m *Machine, e *ast.IndexExpr, env *Env) interface{} {
	container := eval(m, e.X, env)
	key := eval(m, e.Index, env)
	switch c := container.(type) {
	case []interface{}:
		idx := toInt(key)
		if idx < 0 || idx >= int64(len(c)) {
			panic(fmt.Errorf("index out of range: %d", idx))
		}
		return c[idx]
	case map[string]interface{}:
		return c[fmt.Sprintf("%v", key)]
	case string:
		idx := toInt(key)
		if idx < 0 || idx >= int64(len(c)) {
			panic(fmt.Errorf("index out of range: %d", idx))
		}
		return int64(c[idx])
	default:
		panic(fmt.Errorf("cannot index into %T", container))
	}
}

func fieldListNames(fl *ast.FieldList) []string {
	if fl == nil {
		return nil
	}
	var names []string
	for _, f := range fl.List {
		for _, n := range f.Names {
			names = append(names, n.Name)
		}
	}
	return names
}
