package worker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/dispatch"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/policy"
	"github.com/Mindburn-Labs/uclse/pkg/queue"
	"github.com/Mindburn-Labs/uclse/pkg/sandbox"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
	"github.com/Mindburn-Labs/uclse/pkg/worker"
)

type fixture struct {
	store    usercode.Store
	pipeline *usercode.Pipeline
	jobs     jobstore.JobStore
	logs     jobstore.LogStore
	results  jobstore.ResultStore
	actions  dispatch.ActionStore
	broker   *queue.Broker
	disp     *dispatch.Dispatcher
	executor *worker.Executor
}

type storeResolver struct{ store usercode.Store }

func (r storeResolver) WorkerPoolID(funcID string) (string, error) {
	record, err := r.store.Get(funcID)
	if err != nil {
		return "", err
	}
	return record.WorkerPoolID, nil
}

type storeNested struct{ store usercode.Store }

func (s storeNested) InputKwargNames(id string) ([]string, error) {
	record, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return record.InputKwargNames, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := usercode.NewInMemoryStore()
	binder := policy.NewBinder()
	jobs := jobstore.NewInMemoryJobStore()
	logs := jobstore.NewInMemoryLogStore()
	results := jobstore.NewInMemoryResultStore()
	actions := dispatch.NewInMemoryActionStore()
	broker := queue.NewBroker()
	disp := dispatch.NewDispatcher(actions, jobs, broker, storeResolver{store: store})
	rt := sandbox.NewRuntime(jobs, logs, disp, storeNested{store: store})
	executor := worker.NewExecutor(store, binder, rt, results, usercode.NewRecordLocks())
	return &fixture{
		store:    store,
		pipeline: usercode.NewPipeline(store, binder),
		jobs:     jobs,
		logs:     logs,
		results:  results,
		actions:  actions,
		broker:   broker,
		disp:     disp,
		executor: executor,
	}
}

func (f *fixture) submitApproved(t *testing.T, raw, funcName string) *contracts.UserCode {
	t.Helper()
	self := contracts.NodeIdentity{NodeName: "domain-1", NodeID: "node-1"}
	record, err := f.pipeline.Submit(usercode.Submission{
		SubmittedCode: contracts.SubmittedCode{
			RawSource:    raw,
			FuncName:     funcName,
			InputPolicy:  contracts.PolicySpec{TypeTag: "EmptyInputPolicy", InitKwargs: map[string]interface{}{}},
			OutputPolicy: contracts.PolicySpec{TypeTag: "UnlimitedOutputPolicy", InitKwargs: map[string]interface{}{}},
		},
		SubmitterVerifyKey: "submitter-1",
		NodeUID:            "node-1",
		NodeType:           contracts.NodeTypeDomain,
		Self:               self,
		DefaultWorkerPool:  "pool-a",
	})
	require.NoError(t, err)
	require.NoError(t, record.Approval.Transition("node-1", contracts.ApprovalApproved, "ok"))
	require.NoError(t, f.store.Update(record))
	return record
}

func TestExecutorWritesPolicyStateBack(t *testing.T) {
	f := newFixture(t)
	record := f.submitApproved(t, `func f() int { return 1 }`, "f")

	job, err := f.jobs.Create("", record.ID, "pool-a")
	require.NoError(t, err)

	result, err := f.executor.ExecuteOnJob(job.ID, record.ID, "submitter-1", map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Result)

	stored, err := f.store.Get(record.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.InputPolicy.State)
	require.NotEmpty(t, stored.OutputPolicy.State)
}

func TestExecutorRejectsUnapprovedCode(t *testing.T) {
	f := newFixture(t)
	self := contracts.NodeIdentity{NodeName: "domain-1", NodeID: "node-1"}
	record, err := f.pipeline.Submit(usercode.Submission{
		SubmittedCode: contracts.SubmittedCode{
			RawSource:    `func f() int { return 1 }`,
			FuncName:     "f",
			InputPolicy:  contracts.PolicySpec{TypeTag: "EmptyInputPolicy", InitKwargs: map[string]interface{}{}},
			OutputPolicy: contracts.PolicySpec{TypeTag: "UnlimitedOutputPolicy", InitKwargs: map[string]interface{}{}},
		},
		SubmitterVerifyKey: "submitter-1",
		NodeUID:            "node-1",
		NodeType:           contracts.NodeTypeDomain,
		Self:               self,
		DefaultWorkerPool:  "pool-a",
	})
	require.NoError(t, err)

	job, err := f.jobs.Create("", record.ID, "pool-a")
	require.NoError(t, err)

	_, err = f.executor.ExecuteOnJob(job.ID, record.ID, "submitter-1", map[string]interface{}{})
	var notApproved *contracts.NotApproved
	require.ErrorAs(t, err, &notApproved)
}

// TestWorkerRunsDispatchedAction drives the full nested-job path: a
// dispatched action flows through the broker to the worker slot, which
// leases it, runs the referenced code, and records the result.
func TestWorkerRunsDispatchedAction(t *testing.T) {
	f := newFixture(t)
	inner := f.submitApproved(t, `func test_inner() int { return 1 }`, "test_inner")

	w := worker.New("slot-0", f.executor, f.jobs, f.actions, f.disp.Leases())
	w.Start(f.broker, dispatch.APICallTopic)
	defer w.Stop()

	job, err := f.disp.Dispatch("parent-job", "submitter-1", inner.ID, map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, "parent-job", job.ParentJobID)

	require.Eventually(t, func() bool {
		got, err := f.jobs.Get(job.ID)
		return err == nil && got.Status == contracts.JobSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	result, ok := f.results.Get(inner.ID)
	require.True(t, ok)
	require.Equal(t, int64(1), result.Result)

	lease, err := f.disp.Leases().Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, dispatch.LeaseDone, lease.Status)
}

// TestWorkerAbsorbsDuplicateDelivery re-delivers the same task_uid and
// checks the second delivery is a no-op: at-least-once delivery with
// idempotent handlers.
func TestWorkerAbsorbsDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	inner := f.submitApproved(t, `func test_inner() int { return 1 }`, "test_inner")

	w := worker.New("slot-0", f.executor, f.jobs, f.actions, f.disp.Leases())
	w.Start(f.broker, dispatch.APICallTopic)
	defer w.Stop()

	job, err := f.disp.Dispatch("parent-job", "submitter-1", inner.ID, map[string]interface{}{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := f.jobs.Get(job.ID)
		return err == nil && got.Status == contracts.JobSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	// Re-publish the identical wire message the dispatcher produced.
	payload := []byte(`{"task_uid":"` + job.ID + `","action":{"kind":"syft_function_action","kwarg_ids":{},"func_id":"` + inner.ID + `","parent_job_id":"parent-job","worker_pool_id":"pool-a","submitter_key":"submitter-1","has_execute_permissions":true}}`)
	require.NoError(t, f.broker.Publish(dispatch.APICallTopic, payload))

	time.Sleep(50 * time.Millisecond)
	got, err := f.jobs.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.JobSucceeded, got.Status)

	lease, err := f.disp.Leases().Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, dispatch.LeaseDone, lease.Status)
}
