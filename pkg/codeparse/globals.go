package codeparse

import (
	"go/ast"
	"go/token"
)

// DisallowedGlobal names one free identifier a submitted function
// referenced that is neither a parameter, a function-local binding, a
// built-in, nor in the sandbox's fixed allow-list.
//
// Detection is purely syntactic (go/ast.Inspect over the unresolved
// tree, no type-checking). Every offending name is reported in one
// pass rather than stopping at the first — fixing a rejected
// submission one name at a time against a live data node is a
// strictly worse workflow than seeing the whole list at once.
type DisallowedGlobal struct {
	Name string
	Pos  token.Pos
}

var builtinIdents = map[string]bool{
	"true": true, "false": true, "nil": true, "iota": true,
	"len": true, "cap": true, "append": true, "make": true, "new": true,
	"copy": true, "delete": true, "panic": true, "recover": true,
	"print": true, "println": true, "real": true, "imag": true,
	"complex": true, "min": true, "max": true, "clear": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "float32": true, "float64": true, "complex64": true,
	"complex128": true, "string": true, "bool": true, "byte": true,
	"rune": true, "error": true, "any": true, "_": true,
}

// CollectDisallowedGlobals returns every identifier referenced inside
// fn's body that is not bound (parameter, result name, local
// declaration, or the function's own name for recursion), not a Go
// built-in, and not in allowlist (extra names the sandbox provides;
// "domain" is in scope only when bound as a parameter).
func CollectDisallowedGlobals(fn *ast.FuncDecl, allowlist map[string]bool) []DisallowedGlobal {
	bound := map[string]bool{fn.Name.Name: true}
	bindFieldList := func(fl *ast.FieldList) {
		if fl == nil {
			return
		}
		for _, f := range fl.List {
			for _, n := range f.Names {
				bound[n.Name] = true
			}
		}
	}
	bindFieldList(fn.Type.Params)
	bindFieldList(fn.Type.Results)

	collectDeclared(fn.Body, bound)

	var out []DisallowedGlobal
	seen := map[string]bool{}
	walkUses(fn.Body, bound, func(id *ast.Ident) {
		if bound[id.Name] || builtinIdents[id.Name] || allowlist[id.Name] {
			return
		}
		if seen[id.Name] {
			return
		}
		seen[id.Name] = true
		out = append(out, DisallowedGlobal{Name: id.Name, Pos: id.Pos()})
	})
	return out
}

// collectDeclared walks node collecting every name bound anywhere
// inside it (:=, var/const, range vars, func-literal params). It is
// flow-insensitive: a name declared in one block is treated as bound
// for the whole function, which only widens what's permitted, never
// narrows it — acceptable for a reject/admit gate.
func collectDeclared(node ast.Node, bound map[string]bool) {
	ast.Inspect(node, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			if s.Tok == token.DEFINE {
				for _, lhs := range s.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						bound[id.Name] = true
					}
				}
			}
		case *ast.GenDecl:
			for _, spec := range s.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok {
					for _, n := range vs.Names {
						bound[n.Name] = true
					}
				}
				if ts, ok := spec.(*ast.TypeSpec); ok {
					bound[ts.Name.Name] = true
				}
			}
		case *ast.RangeStmt:
			if s.Tok == token.DEFINE {
				if id, ok := s.Key.(*ast.Ident); ok {
					bound[id.Name] = true
				}
				if id, ok := s.Value.(*ast.Ident); ok {
					bound[id.Name] = true
				}
			}
		case *ast.TypeSwitchStmt:
			if as, ok := s.Assign.(*ast.AssignStmt); ok && as.Tok == token.DEFINE {
				for _, lhs := range as.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						bound[id.Name] = true
					}
				}
			}
		case *ast.FuncLit:
			if s.Type.Params != nil {
				for _, f := range s.Type.Params.List {
					for _, n := range f.Names {
						bound[n.Name] = true
					}
				}
			}
			if s.Type.Results != nil {
				for _, f := range s.Type.Results.List {
					for _, n := range f.Names {
						bound[n.Name] = true
					}
				}
			}
		case *ast.LabeledStmt:
			// labels are not identifier references; nothing to bind.
		}
		return true
	})
}

// walkUses invokes visit for every identifier expression that
// represents a *use* (not a declaration site already captured by
// collectDeclared, not a selector field/method name, not a composite
// literal field key).
func walkUses(node ast.Node, bound map[string]bool, visit func(*ast.Ident)) {
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch e := n.(type) {
		case nil:
			return
		case *ast.Ident:
			visit(e)
		case *ast.SelectorExpr:
			walk(e.X) // Sel is a field/method name, not a free identifier
		case *ast.KeyValueExpr:
			if _, isIdent := e.Key.(*ast.Ident); !isIdent {
				walk(e.Key)
			}
			walk(e.Value)
		case *ast.CallExpr:
			// domain.launch_job(<name>, ...): <name> identifies an
			// already-submitted UserCode by its function name — it is
			// never evaluated as a value, so it is not a "use" subject
			// to the globals check (mirrors locateLaunchJobs' own
			// pattern match).
			if sel, ok := e.Fun.(*ast.SelectorExpr); ok {
				if recv, ok := sel.X.(*ast.Ident); ok && recv.Name == "domain" && sel.Sel.Name == "launch_job" {
					walk(e.Fun)
					for _, arg := range e.Args[min(1, len(e.Args)):] {
						walk(arg)
					}
					return
				}
			}
			walk(e.Fun)
			for _, arg := range e.Args {
				walk(arg)
			}
		case *ast.FuncLit:
			walk(e.Type)
			walk(e.Body)
		case *ast.Field:
			walk(e.Type)
		case *ast.FieldList:
			if e == nil {
				return
			}
			for _, f := range e.List {
				walk(f)
			}
		default:
			// ast.Inspect's own generic recursion reaches every
			// descendant node directly, including a CallExpr nested
			// inside an ordinary statement (AssignStmt, ExprStmt,
			// IfStmt, ...) none of which are cased above. CallExpr
			// must be redirected here too, not just Ident/
			// SelectorExpr/KeyValueExpr/FuncLit — otherwise a
			// domain.launch_job(<name>, ...) appearing as a plain
			// statement never reaches the CallExpr case above, and
			// its <name> argument gets treated as an ordinary
			// identifier use instead of being skipped.
			ast.Inspect(n, func(child ast.Node) bool {
				if child == n {
					return true
				}
				switch child.(type) {
				case *ast.Ident, *ast.SelectorExpr, *ast.KeyValueExpr, *ast.FuncLit, *ast.CallExpr:
					walk(child)
					return false
				}
				return true
			})
		}
	}
	walk(node)
}
