// Package worker implements the worker-pool side of the Nested Job
// Dispatcher contract: execution slots that draw dispatched actions
// from the queue, lease them, and run the referenced UserCode under
// the Sandbox Runtime. One Worker is one slot — parallelism comes from
// running several Workers against the same broker, each running its
// claimed action to completion before taking another.
package worker

import (
	"fmt"

	"github.com/Mindburn-Labs/uclse/pkg/approval"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/policy"
	"github.com/Mindburn-Labs/uclse/pkg/sandbox"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
)

// Executor is the one execution path a node has: approval gate, policy
// bind, sandbox run, and policy-state writeback, all under the node's
// shared per-record lock. Both the request surface (pkg/api, for a
// caller's direct ExecuteCode) and the Worker (for dispatched nested
// jobs) run through the same Executor instance, so two executions of
// the same code id can never interleave their read-bind-execute-
// writeback sequences regardless of which path drove them.
type Executor struct {
	Store   usercode.Store
	Binder  *policy.Binder
	Runtime *sandbox.Runtime
	Results jobstore.ResultStore
	Locks   *usercode.RecordLocks
}

func NewExecutor(store usercode.Store, binder *policy.Binder, rt *sandbox.Runtime, results jobstore.ResultStore, locks *usercode.RecordLocks) *Executor {
	return &Executor{Store: store, Binder: binder, Runtime: rt, Results: results, Locks: locks}
}

// ExecuteOnJob runs codeID against an already-allocated Job (jobID's
// log id and parent linkage were set by whoever created it: the
// request surface for a top-level call, the Dispatcher for a nested
// one). Returns NotApproved without touching policy state if the
// code's ApprovalCollection is not unanimously Approved.
func (e *Executor) ExecuteOnJob(jobID, codeID string, submitter contracts.VerifyKey, kwargs map[string]interface{}) (*contracts.ExecutionResult, error) {
	lock := e.Locks.ForID(codeID)
	lock.Lock()
	defer lock.Unlock()

	record, err := e.Store.Get(codeID)
	if err != nil {
		return nil, err
	}
	if !approval.Executable(record.Approval) {
		return nil, &contracts.NotApproved{CodeID: codeID}
	}

	inputPolicy, err := e.Binder.BindInput(record.InputPolicy)
	if err != nil {
		return nil, err
	}
	outputPolicy, err := e.Binder.BindOutput(record.OutputPolicy)
	if err != nil {
		return nil, err
	}

	result, execErr := e.Runtime.Execute(jobID, record, submitter, kwargs, inputPolicy, outputPolicy)
	if result != nil {
		result.UserCodeID = record.ID
		_ = e.Results.Put(result)
	}
	if execErr != nil {
		return result, execErr
	}

	// Commit the mutated policy state back to the record while still
	// holding the record lock, so a read after this write always sees
	// the latest bytes.
	inputState, err := inputPolicy.State()
	if err != nil {
		return result, fmt.Errorf("serialize input policy state: %w", err)
	}
	outputState, err := outputPolicy.State()
	if err != nil {
		return result, fmt.Errorf("serialize output policy state: %w", err)
	}
	record.InputPolicy.State = inputState
	record.OutputPolicy.State = outputState
	if err := e.Store.Update(record); err != nil {
		return result, fmt.Errorf("persist policy state: %w", err)
	}
	return result, nil
}
