package contracts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

func TestMigrate_V1ToV3_DefaultsMissingFields(t *testing.T) {
	c := &contracts.UserCode{
		Version:         contracts.RecordV1,
		ServiceFuncName: "f",
		CodeHash:        "deadbeef",
	}

	c.Migrate("default-pool")

	require.Equal(t, contracts.RecordV3, c.Version)
	assert.Equal(t, "default-pool", c.WorkerPoolID)
	assert.False(t, c.UsesDomain)
	assert.NotNil(t, c.NestedRequests)
	assert.NotNil(t, c.NestedCodes)
	// Fields present before migration must survive unchanged.
	assert.Equal(t, "f", c.ServiceFuncName)
	assert.Equal(t, "deadbeef", c.CodeHash)
}

func TestMigrate_Idempotent(t *testing.T) {
	c := &contracts.UserCode{Version: contracts.RecordV1}
	c.Migrate("pool-a")
	first := *c

	c.Migrate("pool-b")
	assert.Equal(t, first.Version, c.Version)
	assert.Equal(t, first.WorkerPoolID, c.WorkerPoolID, "re-migrating must not overwrite an already-defaulted pool")
}

func TestMigrate_V2PreservesExplicitWorkerPool(t *testing.T) {
	c := &contracts.UserCode{
		Version:      contracts.RecordV2,
		WorkerPoolID: "explicit-pool",
	}
	c.Migrate("default-pool")
	assert.Equal(t, "explicit-pool", c.WorkerPoolID)
}

func TestUserCode_ExecutableReflectsApproval(t *testing.T) {
	self := contracts.NodeIdentity{NodeID: "n1"}
	c := &contracts.UserCode{Approval: contracts.NewApprovalCollection(self)}
	assert.False(t, c.Executable())

	require.NoError(t, c.Approval.Transition("n1", contracts.ApprovalApproved, "ok"))
	assert.True(t, c.Executable())
}
