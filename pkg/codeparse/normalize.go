// Package codeparse implements the Code Normalizer: it parses a
// submitted Go function, rejects syntactically disallowed globals,
// detects domain-capability usage and nested launch_job calls, and
// rewrites the function into a canonically named wrapper.
//
// The source being parsed and rewritten is itself Go, so this package
// is built on go/parser, go/ast, and go/printer rather than a
// third-party parser: those stdlib packages are the only frontend that
// produces the exact tree shape the sandbox interpreter (pkg/sandbox)
// later walks, and the only one guaranteed to agree with Go's own
// grammar on what the submitted function even means.
package codeparse

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// NormalizedCode is the Normalizer's output for one submission.
type NormalizedCode struct {
	WrapperSource  string
	UsesDomain     bool
	NestedRequests map[string]string
	ParamNames     []string
}

// sandboxAllowlist names identifiers the sandbox environment provides
// that are not Go built-ins. The domain capability handle is NOT here:
// it is only in scope when declared as a parameter (which binds it),
// so a reference to "domain" in a function that never declared it is
// a disallowed global — launch_job from a non-uses_domain path fails
// at normalize time, not at run time.
var sandboxAllowlist = map[string]bool{}

// Normalize parses raw as a single function declaration named
// declaredName, validates it, and rewrites it into a wrapper named
// uniqueName. declaredName and uniqueName are equal when normalizing
// an already-rewritten wrapper (the idempotence case); they differ on
// first submission, when declaredName is the submitter's own function
// name.
func Normalize(raw, declaredName, uniqueName string) (*NormalizedCode, error) {
	fn, err := parseSingleFunc(raw, declaredName)
	if err != nil {
		return nil, err
	}

	paramNames := fieldListNames(fn.Type.Params)
	usesDomain := contains(paramNames, "domain")

	if disallowed := CollectDisallowedGlobals(fn, sandboxAllowlist); len(disallowed) > 0 {
		names := make([]string, 0, len(disallowed))
		for _, d := range disallowed {
			names = append(names, d.Name)
		}
		sort.Strings(names)
		return nil, &contracts.NormalizerRejected{
			Reason: fmt.Sprintf("references disallowed global(s): %s", strings.Join(names, ", ")),
		}
	}

	var nested map[string]string
	if usesDomain {
		nested = locateLaunchJobs(fn.Body)
	} else {
		nested = map[string]string{}
	}

	wrapperSrc, err := rewrite(fn, uniqueName)
	if err != nil {
		return nil, &contracts.NormalizerRejected{Reason: err.Error()}
	}

	return &NormalizedCode{
		WrapperSource:  wrapperSrc,
		UsesDomain:     usesDomain,
		NestedRequests: nested,
		ParamNames:     paramNames,
	}, nil
}

func parseSingleFunc(raw, declaredName string) (*ast.FuncDecl, error) {
	src := "package usercode\n\n" + raw
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "usercode.go", src, parser.AllErrors)
	if err != nil {
		return nil, &contracts.NormalizerRejected{Reason: fmt.Sprintf("unparsable source: %v", err)}
	}

	var fn *ast.FuncDecl
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Recv == nil {
			fn = fd
			break
		}
	}
	if fn == nil {
		return nil, &contracts.NormalizerRejected{Reason: "no top-level function declaration found"}
	}
	if fn.Name.Name != declaredName {
		return nil, &contracts.NormalizerRejected{
			Reason: fmt.Sprintf("declared function name %q does not match expected %q", fn.Name.Name, declaredName),
		}
	}
	if fn.Type.Results == nil || len(fn.Type.Results.List) != 1 {
		return nil, &contracts.NormalizerRejected{Reason: "function must declare exactly one return value"}
	}
	return fn, nil
}

const innerVarName = "__inner"

// rewrite produces the canonical wrapper named uniqueName. If fn is
// already in the canonical wrapper shape under that same name (the
// idempotence case), it is re-printed unchanged rather than wrapped a
// second time.
func rewrite(fn *ast.FuncDecl, uniqueName string) (string, error) {
	if fn.Name.Name == uniqueName && isCanonicalWrapper(fn) {
		return printNode(fn)
	}

	paramNames := fieldListNames(fn.Type.Params)
	args := make([]ast.Expr, len(paramNames))
	for i, n := range paramNames {
		args[i] = ast.NewIdent(n)
	}

	resultType := fn.Type.Results.List[0].Type

	innerLit := &ast.FuncLit{
		Type: &ast.FuncType{
			Params:  fn.Type.Params,
			Results: fn.Type.Results,
		},
		Body: fn.Body,
	}

	wrapper := &ast.FuncDecl{
		Name: ast.NewIdent(uniqueName),
		Type: &ast.FuncType{
			Params:  fn.Type.Params,
			Results: &ast.FieldList{List: []*ast.Field{{Type: resultType}}},
		},
		Body: &ast.BlockStmt{
			List: []ast.Stmt{
				&ast.AssignStmt{
					Lhs: []ast.Expr{ast.NewIdent(innerVarName)},
					Tok: token.DEFINE,
					Rhs: []ast.Expr{innerLit},
				},
				&ast.AssignStmt{
					Lhs: []ast.Expr{ast.NewIdent("result")},
					Tok: token.DEFINE,
					Rhs: []ast.Expr{&ast.CallExpr{Fun: ast.NewIdent(innerVarName), Args: args}},
				},
				&ast.ReturnStmt{Results: []ast.Expr{ast.NewIdent("result")}},
			},
		},
	}

	return printNode(wrapper)
}

// isCanonicalWrapper reports whether fn already has the exact
// three-statement shape rewrite produces.
func isCanonicalWrapper(fn *ast.FuncDecl) bool {
	if len(fn.Body.List) != 3 {
		return false
	}
	assign1, ok := fn.Body.List[0].(*ast.AssignStmt)
	if !ok || len(assign1.Lhs) != 1 || len(assign1.Rhs) != 1 {
		return false
	}
	if id, ok := assign1.Lhs[0].(*ast.Ident); !ok || id.Name != innerVarName {
		return false
	}
	if _, ok := assign1.Rhs[0].(*ast.FuncLit); !ok {
		return false
	}
	assign2, ok := fn.Body.List[1].(*ast.AssignStmt)
	if !ok || len(assign2.Lhs) != 1 {
		return false
	}
	if id, ok := assign2.Lhs[0].(*ast.Ident); !ok || id.Name != "result" {
		return false
	}
	call, ok := assign2.Rhs[0].(*ast.CallExpr)
	if !ok {
		return false
	}
	if id, ok := call.Fun.(*ast.Ident); !ok || id.Name != innerVarName {
		return false
	}
	ret, ok := fn.Body.List[2].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return false
	}
	id, ok := ret.Results[0].(*ast.Ident)
	return ok && id.Name == "result"
}

func printNode(n ast.Node) (string, error) {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, token.NewFileSet(), n); err != nil {
		return "", fmt.Errorf("print rewritten source: %w", err)
	}
	return buf.String(), nil
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

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
