// Package approval implements the per-node, multi-party approval state
// machine for a submitted UserCode: Pending -> Approved/Denied, with
// enclave nodes requiring unanimous approval across input owners and
// domain nodes requiring a single local approval.
//
// A domain node gets exactly one approval entry (itself); an enclave
// node gets one entry per input-owner identity.
package approval

import "github.com/Mindburn-Labs/uclse/pkg/contracts"

// NewForDomainNode builds the initial ApprovalCollection for a UserCode
// submitted to a single data-holding domain node: one entry, keyed by
// that node's own identity.
func NewForDomainNode(self contracts.NodeIdentity) contracts.ApprovalCollection {
	return contracts.NewApprovalCollection(self)
}

// NewForEnclaveNode builds the initial ApprovalCollection for a UserCode
// submitted to an enclave: one entry per distinct input-owner identity.
func NewForEnclaveNode(inputOwners ...contracts.NodeIdentity) contracts.ApprovalCollection {
	return contracts.NewApprovalCollection(inputOwners...)
}

// Approve transitions the entry for approver to Approved with
// reason. reason is mandatory but may be the empty string — always a
// string, never optional.
func Approve(c *contracts.ApprovalCollection, approver contracts.NodeIdentity, reason string) error {
	return c.Transition(approver.NodeID, contracts.ApprovalApproved, reason)
}

// Deny transitions the entry for approver to Denied with reason.
func Deny(c *contracts.ApprovalCollection, approver contracts.NodeIdentity, reason string) error {
	return c.Transition(approver.NodeID, contracts.ApprovalDenied, reason)
}

// Executable reports whether every entry in c is Approved — the
// precondition the Sandbox Runtime checks before running a UserCode.
func Executable(c contracts.ApprovalCollection) bool {
	return c.ForUserContext() == contracts.ApprovalApproved
}
