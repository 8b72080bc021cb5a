package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/uclse/pkg/api"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/orchestration"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
)

func newTestService(t *testing.T) (*api.Service, orchestration.NodeHandle, contracts.NodeIdentity) {
	t.Helper()
	self := contracts.NodeIdentity{NodeName: "domain-1", NodeID: "node-1"}
	handle, err := orchestration.NewInProcessLauncher().Launch(orchestration.LaunchConfig{
		NodeUID:           "node-1",
		NodeType:          contracts.NodeTypeDomain,
		Self:              self,
		DefaultWorkerPool: "pool-a",
	})
	require.NoError(t, err)

	svc := api.NewService(handle.Pipeline(), handle.Executor(), handle.Jobs(), handle.Logs(), nil)
	return svc, handle, self
}

func submission(raw, funcName string, self contracts.NodeIdentity, inputTag string, inputKwargs map[string]interface{}) usercode.Submission {
	return usercode.Submission{
		SubmittedCode: contracts.SubmittedCode{
			RawSource:    raw,
			FuncName:     funcName,
			InputPolicy:  contracts.PolicySpec{TypeTag: inputTag, InitKwargs: inputKwargs},
			OutputPolicy: contracts.PolicySpec{TypeTag: "SingleExecutionExactOutput", InitKwargs: map[string]interface{}{}},
		},
		SubmitterVerifyKey: "submitter-1",
		NodeUID:            "node-1",
		NodeType:           contracts.NodeTypeDomain,
		Self:               self,
		DefaultWorkerPool:  "pool-a",
	}
}

// TestSubmitApproveExecuteSingleUse walks the full lifecycle: submit
// a no-arg function, approve it on the domain node, execute it once
// successfully, then watch the second identical call get rejected by
// its single-use output policy.
func TestSubmitApproveExecuteSingleUse(t *testing.T) {
	svc, _, self := newTestService(t)
	ctx := context.Background()

	// submit
	record, err := svc.SubmitCode(ctx, submission(`func f() int { return 1 }`, "f", self, "EmptyInputPolicy", map[string]interface{}{}))
	require.NoError(t, err)
	require.Equal(t, "f", record.ServiceFuncName)
	require.False(t, record.UsesDomain)
	require.Empty(t, record.NestedRequests)
	require.Len(t, record.Approval.Entries, 1)
	require.Equal(t, contracts.ApprovalPending, record.Approval.ForUserContext())

	// approve
	require.NoError(t, svc.ApproveCode(ctx, record.ID, self, "ok"))

	// first execution succeeds
	result, err := svc.ExecuteCode(ctx, record.ID, "submitter-1", map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Result)
	require.Empty(t, result.Stdout)
	require.Empty(t, result.Stderr)
	require.Empty(t, result.ErrMessage)

	fetched, ok := svc.GetResult(ctx, record.ID)
	require.True(t, ok)
	require.Equal(t, int64(1), fetched.Result)

	// second execution trips the single-use output policy
	_, err = svc.ExecuteCode(ctx, record.ID, "submitter-1", map[string]interface{}{})
	require.Error(t, err)
	var reject *contracts.PolicyReject
	require.ErrorAs(t, err, &reject)
	require.Equal(t, "output", reject.Stage)
}

// TestSubmitRejectsFreeIdentifier covers the Normalizer rejecting a
// disallowed global at submission time, leaving the store untouched.
func TestSubmitRejectsFreeIdentifier(t *testing.T) {
	svc, handle, self := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitCode(ctx, submission(`func g() int { return X }`, "g", self, "EmptyInputPolicy", map[string]interface{}{}))
	require.Error(t, err)
	var rejected *contracts.NormalizerRejected
	require.ErrorAs(t, err, &rejected)
	require.Contains(t, rejected.Reason, "X")

	all, err := handle.Pipeline().Store.List()
	require.NoError(t, err)
	require.Empty(t, all)
}

// TestNestedLaunchJobRunsToCompletion covers a nested
// domain.launch_job call: the dispatched job carries the caller's job
// id as its parent, and the worker slot eventually runs it.
func TestNestedLaunchJobRunsToCompletion(t *testing.T) {
	svc, handle, self := newTestService(t)
	ctx := context.Background()

	inner, err := svc.SubmitCode(ctx, submission(`func test_inner() int { return 1 }`, "test_inner", self, "EmptyInputPolicy", map[string]interface{}{}))
	require.NoError(t, err)
	require.NoError(t, svc.ApproveCode(ctx, inner.ID, self, "ok"))

	outer, err := svc.SubmitCode(ctx, submission(`func h(domain interface{}) interface{} {
		job := domain.launch_job(test_inner)
		return job
	}`, "h", self, "EmptyInputPolicy", map[string]interface{}{}))
	require.NoError(t, err)
	require.True(t, outer.UsesDomain)
	require.Contains(t, outer.NestedRequests, "test_inner")

	require.NoError(t, handle.Pipeline().BindNested(outer.ID, "test_inner", inner.ID))
	require.NoError(t, svc.ApproveCode(ctx, outer.ID, self, "ok"))

	result, err := svc.ExecuteCode(ctx, outer.ID, "submitter-1", map[string]interface{}{})
	require.NoError(t, err)

	job, ok := result.Result.(*contracts.Job)
	require.True(t, ok)
	require.NotEmpty(t, job.ParentJobID)

	children := handle.Jobs().ListChildren(job.ParentJobID)
	require.Len(t, children, 1)
	require.Equal(t, job.ID, children[0].ID)

	// The node's execution slot drains the dispatched action off the
	// broker; the inner job eventually runs and produces 1.
	require.Eventually(t, func() bool {
		inner, err := handle.Jobs().Get(job.ID)
		return err == nil && inner.Status == contracts.JobSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	innerResult, ok := svc.GetResult(ctx, inner.ID)
	require.True(t, ok)
	require.Equal(t, int64(1), innerResult.Result)
}

// TestExecuteCode_NotApprovedLeavesPolicyStateUntouched: execution
// while any approval entry is not Approved returns NotApproved and
// never advances policy state.
func TestExecuteCode_NotApprovedLeavesPolicyStateUntouched(t *testing.T) {
	svc, handle, self := newTestService(t)
	ctx := context.Background()

	record, err := svc.SubmitCode(ctx, submission(`func f() int { return 1 }`, "f", self, "EmptyInputPolicy", map[string]interface{}{}))
	require.NoError(t, err)

	_, err = svc.ExecuteCode(ctx, record.ID, "submitter-1", map[string]interface{}{})
	require.Error(t, err)
	var notApproved *contracts.NotApproved
	require.ErrorAs(t, err, &notApproved)

	stored, err := handle.Pipeline().Store.Get(record.ID)
	require.NoError(t, err)
	require.Equal(t, record.OutputPolicy.State, stored.OutputPolicy.State)
}

func TestApproveCode_UnknownNodeReturnsApprovalTargetMissing(t *testing.T) {
	svc, _, self := newTestService(t)
	ctx := context.Background()

	record, err := svc.SubmitCode(ctx, submission(`func f() int { return 1 }`, "f", self, "EmptyInputPolicy", map[string]interface{}{}))
	require.NoError(t, err)

	err = svc.ApproveCode(ctx, record.ID, contracts.NodeIdentity{NodeID: "some-other-node"}, "ok")
	require.Error(t, err)
	var missing *contracts.ApprovalTargetMissing
	require.ErrorAs(t, err, &missing)
}
