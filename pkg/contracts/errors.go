package contracts

import "fmt"

// NormalizerRejected is returned when submitted source references a
// disallowed global or fails to parse.
type NormalizerRejected struct {
	Reason string
}

func (e *NormalizerRejected) Error() string {
	return fmt.Sprintf("normalizer rejected code: %s", e.Reason)
}

// Duplicate is returned when a submission collides on (verify_key, code_hash)
// with an existing record; ExistingID is that record's id.
type Duplicate struct {
	ExistingID string
}

func (e *Duplicate) Error() string {
	return fmt.Sprintf("duplicate submission, existing id %s", e.ExistingID)
}

// PolicyBindFailed is returned when a policy reference cannot be resolved
// or its init kwargs fail schema validation.
type PolicyBindFailed struct {
	Reason string
}

func (e *PolicyBindFailed) Error() string {
	return fmt.Sprintf("policy bind failed: %s", e.Reason)
}

// ApprovalTargetMissing is returned when mutating approval state for a
// NodeIdentity not present in the collection.
type ApprovalTargetMissing struct {
	Node NodeIdentity
}

func (e *ApprovalTargetMissing) Error() string {
	return fmt.Sprintf("approval target missing: node %s (%s)", e.Node.NodeName, e.Node.NodeID)
}

// TerminalStateViolation is returned on an attempt to transition an
// already-terminal approval entry.
type TerminalStateViolation struct {
	Node NodeIdentity
	From ApprovalStatus
}

func (e *TerminalStateViolation) Error() string {
	return fmt.Sprintf("cannot transition node %s out of terminal state %s", e.Node.NodeName, e.From)
}

// NotApproved is returned when execution is attempted while the
// approval collection is not unanimously Approved.
type NotApproved struct {
	CodeID string
}

func (e *NotApproved) Error() string {
	return fmt.Sprintf("user code %s is not approved", e.CodeID)
}

// PolicyReject is returned when the input or output policy refuses a call.
type PolicyReject struct {
	Stage  string // "input" or "output"
	Reason string
}

func (e *PolicyReject) Error() string {
	return fmt.Sprintf("%s policy rejected call: %s", e.Stage, e.Reason)
}

// CompileError is returned when the normalized wrapper fails static
// resolution (unresolved identifier, malformed AST).
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error: %s", e.Message)
}

// RuntimeError carries a framed traceback produced during execution.
type RuntimeError struct {
	FramedMessage string
}

func (e *RuntimeError) Error() string {
	return e.FramedMessage
}

// DispatchError is raised inside the sandbox when a nested job cannot
// be enqueued. The interpreter has no defer/recover, so submitted code
// cannot catch it: it ends the calling execution, which fails with a
// RuntimeError framing this error's text.
type DispatchError struct {
	Reason string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error: %s", e.Reason)
}
