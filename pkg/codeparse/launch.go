package codeparse

import "go/ast"

// locateLaunchJobs returns the set of function names invoked as
// domain.launch_job(<name>, ...) inside fn's body, mapped to the
// "latest" version marker for the nested-requests table. The scan
// only happens when "domain" is a declared parameter — enforced by
// the caller, not here.
func locateLaunchJobs(body *ast.BlockStmt) map[string]string {
	nested := map[string]string{}
	ast.Inspect(body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := sel.X.(*ast.Ident)
		if !ok || recv.Name != "domain" || sel.Sel.Name != "launch_job" {
			return true
		}
		if len(call.Args) == 0 {
			return true
		}
		if nameIdent, ok := call.Args[0].(*ast.Ident); ok {
			nested[nameIdent.Name] = "latest"
		}
		return true
	})
	return nested
}
