// This file documents the exit-code and stderr-line contract the
// uclsectl CLI (cmd/uclsectl) follows when it talks to an already
// launched node's request surface (pkg/api), without reimplementing
// node launch/teardown itself.
//
// The convention: a "✅ <noun> <verb>" line on success, a
// "❌ <reason>" line on failure, printed to the stream the operator is
// watching rather than returned as a structured value. uclsectl keeps
// that convention for its own operator-facing output while returning
// the exit codes below so scripts can branch on more than stderr
// text.
//
// Exit codes:
//
//	0 = the requested operation completed
//	1 = the operation failed at or on the way to the node: the node
//	    rejected it (domain error: not approved, policy reject,
//	    duplicate, compile error, ...), the node could not be reached,
//	    or its response could not be decoded
//	2 = uclsectl itself could not start the operation (unknown
//	    command, missing or malformed flags)
package orchestration
