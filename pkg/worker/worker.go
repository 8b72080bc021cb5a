package worker

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/dispatch"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/queue"
)

// leaseDuration bounds how long one claimed action may run before
// another worker may re-claim it (at-least-once delivery: a crashed
// slot's action comes back).
const leaseDuration = 5 * time.Minute

// wireMessage mirrors pkg/dispatch's published payload shape; declared
// here rather than shared so the wire format stays an explicit
// contract between producer and consumer, not a Go type dependency.
type wireMessage struct {
	TaskUID string           `json:"task_uid"`
	Action  contracts.Action `json:"action"`
}

// Worker is one execution slot: it subscribes to the dispatch topic,
// claims each delivered action's lease, resolves its boxed kwargs, and
// runs the referenced UserCode to completion through the node's
// Executor. Duplicate deliveries of the same task_uid are absorbed by
// the lease claim (a second delivery finds the action already leased
// or done) and by the job-status check, so handlers stay idempotent
// the way the queue contract requires.
type Worker struct {
	ID       string
	Executor *Executor
	Jobs     jobstore.JobStore
	Actions  dispatch.ActionStore
	Leases   *dispatch.LeaseRegistry
	log      *slog.Logger

	unsubscribe func()
}

func New(id string, executor *Executor, jobs jobstore.JobStore, actions dispatch.ActionStore, leases *dispatch.LeaseRegistry) *Worker {
	return &Worker{
		ID:       id,
		Executor: executor,
		Jobs:     jobs,
		Actions:  actions,
		Leases:   leases,
		log:      slog.Default().With("component", "worker", "worker_id", id),
	}
}

// Start subscribes the worker to topic on sub. Each delivered message
// is handled on the broker's delivery goroutine for this
// subscription, so one Worker processes its actions one at a time in
// delivery order: one invocation occupies the slot until it returns.
func (w *Worker) Start(sub queue.Subscriber, topic string) {
	w.unsubscribe = sub.Subscribe(topic, w.handle)
	w.log.Info("worker started", "topic", topic)
}

// Stop unsubscribes the worker; an action already being handled runs
// to completion.
func (w *Worker) Stop() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

func (w *Worker) handle(m queue.Message) {
	var msg wireMessage
	if err := json.Unmarshal(m.Payload, &msg); err != nil {
		w.log.Warn("discarding malformed action payload", "error", err)
		return
	}

	if _, err := w.Leases.AtomicLease(msg.TaskUID, w.ID, leaseDuration); err != nil {
		// Another slot holds it, or it was already completed — the
		// duplicate-delivery case the contract says to absorb.
		w.log.Debug("skipping action", "task_uid", msg.TaskUID, "reason", err)
		return
	}

	job, err := w.Jobs.Get(msg.TaskUID)
	if err != nil {
		w.log.Warn("leased action has no job record", "task_uid", msg.TaskUID, "error", err)
		_, _ = w.Leases.Fail(msg.TaskUID)
		return
	}
	if job.Status == contracts.JobSucceeded || job.Status == contracts.JobFailed {
		_ = w.Leases.Complete(msg.TaskUID)
		return
	}

	kwargs, err := w.resolveKwargs(msg.Action.KwargIDs)
	if err != nil {
		w.log.Warn("resolve boxed kwargs", "task_uid", msg.TaskUID, "error", err)
		_ = w.Jobs.SetStatus(msg.TaskUID, contracts.JobFailed)
		_, _ = w.Leases.Fail(msg.TaskUID)
		return
	}

	_, execErr := w.Executor.ExecuteOnJob(msg.TaskUID, msg.Action.FuncID, msg.Action.SubmitterKey, kwargs)
	if execErr != nil {
		w.log.Warn("nested job failed", "task_uid", msg.TaskUID, "func_id", msg.Action.FuncID, "error", execErr)
		_ = w.Jobs.SetStatus(msg.TaskUID, contracts.JobFailed)
		_, _ = w.Leases.Fail(msg.TaskUID)
		return
	}

	_ = w.Leases.Complete(msg.TaskUID)
	w.log.Info("nested job completed", "task_uid", msg.TaskUID, "func_id", msg.Action.FuncID)
}

// resolveKwargs unboxes each ActionObject id back into the value the
// Dispatcher stored at launch_job time.
func (w *Worker) resolveKwargs(kwargIDs map[string]string) (map[string]interface{}, error) {
	kwargs := make(map[string]interface{}, len(kwargIDs))
	for name, id := range kwargIDs {
		obj, err := w.Actions.Get(id)
		if err != nil {
			return nil, err
		}
		kwargs[name] = obj.Payload
	}
	return kwargs, nil
}
