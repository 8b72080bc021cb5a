// Package orchestration launches a UCLSE node process: wiring the
// Store, Policy Binder, Job/Log stores, Nested Job Dispatcher,
// Sandbox Runtime, and worker slot into one addressable handle.
//
// Only the in-process launcher is implemented here; container and
// Kubernetes deployment targets are external launchers behind the
// same NodeLauncher interface, with nothing in this module able to
// stand one up.
package orchestration

import (
	"fmt"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/dispatch"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/policy"
	"github.com/Mindburn-Labs/uclse/pkg/queue"
	"github.com/Mindburn-Labs/uclse/pkg/sandbox"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
	"github.com/Mindburn-Labs/uclse/pkg/worker"
)

// LaunchConfig names the node identity and defaults a launched node
// starts with.
type LaunchConfig struct {
	NodeUID           string
	NodeType          contracts.NodeType
	Self              contracts.NodeIdentity
	DefaultWorkerPool string
	Store             usercode.Store // caller supplies InMemoryStore or SQLiteStore
}

// NodeHandle is everything a launched node exposes to its caller: the
// wired subsystems plus a single Land method to tear it down.
type NodeHandle interface {
	NodeUID() string
	DefaultWorkerPool() string
	Pipeline() *usercode.Pipeline
	Runtime() *sandbox.Runtime
	Dispatcher() *dispatch.Dispatcher
	Jobs() jobstore.JobStore
	Logs() jobstore.LogStore
	Results() jobstore.ResultStore
	Executor() *worker.Executor
	Land() error
}

// NodeLauncher launches a node handle from a LaunchConfig.
type NodeLauncher interface {
	Launch(cfg LaunchConfig) (NodeHandle, error)
}

// InProcessLauncher launches every UCLSE subsystem in the calling
// process, with no subprocess or container involved.
type InProcessLauncher struct{}

func NewInProcessLauncher() *InProcessLauncher { return &InProcessLauncher{} }

func (l *InProcessLauncher) Launch(cfg LaunchConfig) (NodeHandle, error) {
	if cfg.NodeUID == "" {
		return nil, fmt.Errorf("orchestration: NodeUID is required")
	}
	store := cfg.Store
	if store == nil {
		store = usercode.NewInMemoryStore()
	}

	binder := policy.NewBinder()
	pipeline := usercode.NewPipeline(store, binder)

	jobs := jobstore.NewInMemoryJobStore()
	logs := jobstore.NewInMemoryLogStore()
	results := jobstore.NewInMemoryResultStore()
	broker := queue.NewBroker()
	actions := dispatch.NewInMemoryActionStore()
	funcs := &storeFuncResolver{store: store}
	disp := dispatch.NewDispatcher(actions, jobs, broker, funcs)

	nested := &storeNestedLookup{store: store}
	rt := sandbox.NewRuntime(jobs, logs, disp, nested)

	locks := usercode.NewRecordLocks()
	executor := worker.NewExecutor(store, binder, rt, results, locks)

	// One execution slot per in-process node, drawing dispatched nested
	// jobs off the node's own broker. Multi-slot pools are a deployment
	// concern of the container/k8s launchers this module leaves as
	// extension points.
	slot := worker.New(cfg.NodeUID+"-slot-0", executor, jobs, actions, disp.Leases())
	slot.Start(broker, dispatch.APICallTopic)

	return &inProcessNode{
		nodeUID:     cfg.NodeUID,
		defaultPool: cfg.DefaultWorkerPool,
		pipeline:    pipeline,
		runtime:     rt,
		disp:        disp,
		jobs:        jobs,
		logs:        logs,
		results:     results,
		executor:    executor,
		slot:        slot,
	}, nil
}

type inProcessNode struct {
	nodeUID     string
	defaultPool string
	pipeline    *usercode.Pipeline
	runtime     *sandbox.Runtime
	disp        *dispatch.Dispatcher
	jobs        jobstore.JobStore
	logs        jobstore.LogStore
	results     jobstore.ResultStore
	executor    *worker.Executor
	slot        *worker.Worker
}

func (n *inProcessNode) NodeUID() string                 { return n.nodeUID }
func (n *inProcessNode) DefaultWorkerPool() string        { return n.defaultPool }
func (n *inProcessNode) Pipeline() *usercode.Pipeline     { return n.pipeline }
func (n *inProcessNode) Runtime() *sandbox.Runtime        { return n.runtime }
func (n *inProcessNode) Dispatcher() *dispatch.Dispatcher { return n.disp }
func (n *inProcessNode) Jobs() jobstore.JobStore          { return n.jobs }
func (n *inProcessNode) Logs() jobstore.LogStore          { return n.logs }
func (n *inProcessNode) Results() jobstore.ResultStore    { return n.results }
func (n *inProcessNode) Executor() *worker.Executor       { return n.executor }

// Land tears down the node: the execution slot stops drawing actions;
// in-memory stores need no release.
func (n *inProcessNode) Land() error {
	n.slot.Stop()
	return nil
}

// storeNestedLookup adapts a usercode.Store to sandbox.NestedLookup:
// domain.launch_job(ref, args...) needs the nested UserCode's own
// declared parameter names to zip positional args into kwargs.
type storeNestedLookup struct {
	store usercode.Store
}

func (s *storeNestedLookup) InputKwargNames(userCodeID string) ([]string, error) {
	record, err := s.store.Get(userCodeID)
	if err != nil {
		return nil, err
	}
	return record.InputKwargNames, nil
}

// storeFuncResolver adapts a usercode.Store to dispatch.FuncResolver:
// the Dispatcher needs a dispatched UserCode's WorkerPoolID, nothing
// else.
type storeFuncResolver struct {
	store usercode.Store
}

func (s *storeFuncResolver) WorkerPoolID(funcID string) (string, error) {
	record, err := s.store.Get(funcID)
	if err != nil {
		return "", err
	}
	return record.WorkerPoolID, nil
}
