package sandbox

import (
	"fmt"
	"go/ast"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/uclse/pkg/codeparse"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// compile walks the wrapper's AST once and resolves every identifier
// against the closed environment (kwargs, nested-code table, print,
// domain), raising a CompileError for anything that doesn't resolve
// statically rather than discovering it mid-execution.
//
// It reuses pkg/codeparse's free-identifier walk (the same pass that
// already gated submission) as the baseline "does every name resolve"
// check, then layers on two static rules the generic globals check
// does not: only the four LocalDomainClient selectors may be called
// on "domain", and no assignment may target "domain" at all —
// attribute writes on the handle fail regardless of name.
func compile(fn *ast.FuncDecl, nestedNames []string) error {
	// "domain" is deliberately absent: the wrapper preserves the
	// original parameter list, so it is bound iff the submitter
	// declared it — a domain reference in a non-uses_domain code path
	// fails right here.
	allowlist := map[string]bool{"print": true}
	for _, n := range nestedNames {
		allowlist[n] = true
	}

	if disallowed := codeparse.CollectDisallowedGlobals(fn, allowlist); len(disallowed) > 0 {
		names := make([]string, 0, len(disallowed))
		for _, d := range disallowed {
			names = append(names, d.Name)
		}
		sort.Strings(names)
		return &contracts.CompileError{
			Message: fmt.Sprintf("unresolved identifier(s): %s", strings.Join(names, ", ")),
		}
	}

	var compileErr error
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if compileErr != nil {
			return false
		}
		switch s := n.(type) {
		case *ast.CallExpr:
			if sel, ok := s.Fun.(*ast.SelectorExpr); ok {
				if recv, ok := sel.X.(*ast.Ident); ok && recv.Name == "domain" {
					if !allowedDomainMethods[sel.Sel.Name] {
						compileErr = &contracts.CompileError{
							Message: fmt.Sprintf("domain.%s is not a permitted capability", sel.Sel.Name),
						}
						return false
					}
				}
			}
		case *ast.AssignStmt:
			for _, lhs := range s.Lhs {
				if targetsDomain(lhs) {
					compileErr = &contracts.CompileError{
						Message: "attempting to alter read-only value \"domain\"",
					}
					return false
				}
			}
		case *ast.IncDecStmt:
			if targetsDomain(s.X) {
				compileErr = &contracts.CompileError{
					Message: "attempting to alter read-only value \"domain\"",
				}
				return false
			}
		}
		return true
	})
	return compileErr
}

var allowedDomainMethods = map[string]bool{
	"init_progress":      true,
	"set_progress":       true,
	"increment_progress": true,
	"launch_job":         true,
}

func targetsDomain(e ast.Expr) bool {
	switch t := e.(type) {
	case *ast.Ident:
		return t.Name == "domain"
	case *ast.SelectorExpr:
		id, ok := t.X.(*ast.Ident)
		return ok && id.Name == "domain"
	default:
		return false
	}
}
