// Package dispatch implements the Nested Job Dispatcher: turning a
// sandboxed domain.launch_job(func, ...) call into a queued Action
// against a worker pool, with parent-job linkage and lease/retry
// bookkeeping (pkg/dispatch/lease.go).
package dispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/queue"
)

// APICallTopic is the queue topic dispatched actions are published
// on; worker slots subscribe to it by name.
const APICallTopic = "api_call"

// FuncResolver looks up a UserCode by id, which the Dispatcher needs
// only to read its WorkerPoolID — it never executes the code itself.
type FuncResolver interface {
	WorkerPoolID(funcID string) (string, error)
}

// Dispatcher turns launch_job calls into queued Actions.
type Dispatcher struct {
	actions ActionStore
	jobs    jobstore.JobStore
	leases  *LeaseRegistry
	pub     queue.Publisher
	funcs   FuncResolver
	log     *slog.Logger
}

func NewDispatcher(actions ActionStore, jobs jobstore.JobStore, pub queue.Publisher, funcs FuncResolver) *Dispatcher {
	return &Dispatcher{
		actions: actions,
		jobs:    jobs,
		leases:  NewLeaseRegistry(),
		pub:     pub,
		funcs:   funcs,
		log:     slog.Default().With("component", "dispatch"),
	}
}

// wireMessage is the serialized form of a dispatched
// syft_function_action: the task uid plus the action itself.
type wireMessage struct {
	TaskUID string            `json:"task_uid"`
	Action  contracts.Action  `json:"action"`
}

// Dispatch boxes each kwarg as an ActionObject, constructs a
// syft_function_action, enqueues it with parent-job linkage, and
// returns the new Job handle. Dispatches from a single caller (one
// parentJobID) are serialized by the caller holding the sandbox's
// single execution slot, so this method does not itself need to
// order concurrent calls — it only needs to not reorder a single
// sequential caller's own calls, which a synchronous, non-buffering
// implementation guarantees for free.
func (d *Dispatcher) Dispatch(parentJobID string, submitter contracts.VerifyKey, funcID string, kwargs map[string]interface{}) (*contracts.Job, error) {
	kwargIDs := make(map[string]string, len(kwargs))
	for name, value := range kwargs {
		obj, err := d.actions.Set(funcID, value)
		if err != nil {
			return nil, &contracts.DispatchError{Reason: fmt.Sprintf("box argument %q: %v", name, err)}
		}
		kwargIDs[name] = obj.ID
	}

	workerPoolID, err := d.funcs.WorkerPoolID(funcID)
	if err != nil {
		return nil, &contracts.DispatchError{Reason: fmt.Sprintf("resolve worker pool for %s: %v", funcID, err)}
	}

	action := contracts.Action{
		Kind:                  contracts.SyftFunctionAction,
		KwargIDs:              kwargIDs,
		FuncID:                funcID,
		ParentJobID:           parentJobID,
		WorkerPoolID:          workerPoolID,
		SubmitterKey:          submitter,
		HasExecutePermissions: true,
	}

	job, err := d.jobs.Create(parentJobID, funcID, workerPoolID)
	if err != nil {
		return nil, &contracts.DispatchError{Reason: fmt.Sprintf("allocate job record: %v", err)}
	}
	d.leases.Register(job.ID)

	payload, err := json.Marshal(wireMessage{TaskUID: job.ID, Action: action})
	if err != nil {
		return nil, &contracts.DispatchError{Reason: fmt.Sprintf("serialize action: %v", err)}
	}
	if err := d.pub.Publish(APICallTopic, payload); err != nil {
		return nil, &contracts.DispatchError{Reason: fmt.Sprintf("enqueue action: %v", err)}
	}

	d.log.Info("dispatched nested job", "job_id", job.ID, "parent_job_id", parentJobID, "func_id", funcID)
	return job, nil
}

// Leases exposes the dispatcher's lease registry for worker pools that
// claim dispatched actions (AtomicLease/Complete/Fail), kept separate
// from Dispatch itself since claiming is a consumer-side concern.
func (d *Dispatcher) Leases() *LeaseRegistry { return d.leases }
