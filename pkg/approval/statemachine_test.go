package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/uclse/pkg/approval"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

func domainNode() contracts.NodeIdentity {
	return contracts.NodeIdentity{NodeName: "domain-1", NodeID: "n1", VerifyKey: "vk1"}
}

func TestDomainNode_SingleApprovalMakesExecutable(t *testing.T) {
	self := domainNode()
	coll := approval.NewForDomainNode(self)
	assert.Equal(t, contracts.ApprovalPending, coll.ForUserContext())

	require.NoError(t, approval.Approve(&coll, self, "ok"))
	assert.True(t, approval.Executable(coll))
}

func TestEnclaveNode_RequiresAllApprovals(t *testing.T) {
	a := contracts.NodeIdentity{NodeName: "a", NodeID: "a"}
	b := contracts.NodeIdentity{NodeName: "b", NodeID: "b"}
	coll := approval.NewForEnclaveNode(a, b)

	require.NoError(t, approval.Approve(&coll, a, "ok"))
	assert.False(t, approval.Executable(coll))
	assert.Equal(t, contracts.ApprovalPending, coll.ForUserContext())

	require.NoError(t, approval.Approve(&coll, b, "ok"))
	assert.True(t, approval.Executable(coll))
}

func TestEnclaveNode_AnyDenialDenies(t *testing.T) {
	a := contracts.NodeIdentity{NodeName: "a", NodeID: "a"}
	b := contracts.NodeIdentity{NodeName: "b", NodeID: "b"}
	coll := approval.NewForEnclaveNode(a, b)

	require.NoError(t, approval.Approve(&coll, a, "ok"))
	require.NoError(t, approval.Deny(&coll, b, "no"))
	assert.Equal(t, contracts.ApprovalDenied, coll.ForUserContext())
}

func TestTerminalStateViolation(t *testing.T) {
	self := domainNode()
	coll := approval.NewForDomainNode(self)
	require.NoError(t, approval.Approve(&coll, self, "ok"))

	err := approval.Deny(&coll, self, "changed my mind")
	require.Error(t, err)
	var tsv *contracts.TerminalStateViolation
	assert.ErrorAs(t, err, &tsv)
}

func TestApprovalTargetMissing(t *testing.T) {
	coll := approval.NewForDomainNode(domainNode())
	stranger := contracts.NodeIdentity{NodeID: "stranger"}

	err := approval.Approve(&coll, stranger, "ok")
	require.Error(t, err)
	var missing *contracts.ApprovalTargetMissing
	assert.ErrorAs(t, err, &missing)
}
