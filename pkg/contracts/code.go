package contracts

import "time"

// PolicySpec names a policy reference plus the state needed to
// reconstruct and re-run it: a built-in type tag or a UserPolicy id,
// the init kwargs applied at bind time, and its serialized runtime
// state (written back by the sandbox after any execution that mutates
// it).
type PolicySpec struct {
	TypeTag    string                 `json:"type_tag"`
	InitKwargs map[string]interface{} `json:"init_kwargs"`
	State      []byte                 `json:"state"`
}

// CodeEnvironment records the declared package/version set a UserCode
// was authored against. The sandbox has no package pinning at this
// layer, so this is read-only audit metadata, not an executable
// environment descriptor.
type CodeEnvironment struct {
	Packages map[string]string `json:"packages,omitempty"`
}

// SubmittedCode is the client-side pre-record: what a submitter sends
// before the node assigns it an id and approval state.
type SubmittedCode struct {
	RawSource       string      `json:"raw_source"`
	FuncName        string      `json:"func_name"`
	InputKwargNames []string    `json:"input_kwarg_names"`
	InputPolicy     PolicySpec  `json:"input_policy"`
	OutputPolicy    PolicySpec  `json:"output_policy"`
	WorkerPoolID    string      `json:"worker_pool_id,omitempty"`
	Environment     CodeEnvironment `json:"environment,omitempty"`
}

// RecordVersion is the persisted schema version of a UserCode record.
type RecordVersion int

const (
	RecordV1 RecordVersion = 1
	RecordV2 RecordVersion = 2
	RecordV3 RecordVersion = 3

	CurrentRecordVersion = RecordV3
)

// UserCode is the server-side, content-addressed, immutable-after-
// approval record tying code, policies, approval state, and worker-pool
// binding together.
type UserCode struct {
	Version RecordVersion `json:"version"`

	ID                 string    `json:"id"`
	SubmitterVerifyKey VerifyKey `json:"submitter_verify_key"`

	RawSource       string `json:"raw_source"`
	RewrittenSource string `json:"rewritten_source"`
	CodeHash        string `json:"code_hash"`

	ServiceFuncName    string `json:"service_func_name"`
	UniqueFuncName     string `json:"unique_func_name"`
	UserUniqueFuncName string `json:"user_unique_func_name"`

	InputKwargNames []string `json:"input_kwarg_names"`

	InputPolicy  PolicySpec `json:"input_policy"`
	OutputPolicy PolicySpec `json:"output_policy"`

	Approval ApprovalCollection `json:"approval"`

	SubmitTime time.Time `json:"submit_time"`

	// UsesDomain is true iff "domain" appears in the original parameter
	// list; gates whether launch_job calls are even looked for.
	UsesDomain bool `json:"uses_domain"`
	// NestedRequests maps a called function name to "latest" for every
	// domain.launch_job(<name>, ...) call found in the body.
	NestedRequests map[string]string `json:"nested_requests"`
	// NestedCodes resolves a nested request name to the concrete
	// UserCode id it was bound to at approval time.
	NestedCodes map[string]string `json:"nested_codes"`

	WorkerPoolID string          `json:"worker_pool_id"`
	NodeUID      string          `json:"node_uid"`
	Environment  CodeEnvironment `json:"environment,omitempty"`
}

// Executable reports whether every approval entry is Approved.
func (c *UserCode) Executable() bool {
	return c.Approval.ForUserContext() == ApprovalApproved
}

// Migrate upgrades a record of any known version forward to
// CurrentRecordVersion, defaulting fields absent in earlier versions
// and never dropping data present in both. defaultPool is used to fill
// WorkerPoolID when upgrading from v1/v2 records that predate it.
func (c *UserCode) Migrate(defaultPool string) {
	if c.Version < RecordV2 {
		if c.NestedRequests == nil {
			c.NestedRequests = map[string]string{}
		}
		if c.NestedCodes == nil {
			c.NestedCodes = map[string]string{}
		}
		c.UsesDomain = false
		c.Version = RecordV2
	}
	if c.Version < RecordV3 {
		if c.WorkerPoolID == "" {
			c.WorkerPoolID = defaultPool
		}
		c.Version = RecordV3
	}
	// The v2-era sentinel for "policy state not yet materialized" was an
	// empty byte slice with no distinguishing marker; on migrate we
	// leave zero-length State as-is and let the Policy Binder
	// materialize real initial state on first read (spec's resolution
	// of the sentinel Open Question), rather than guessing a value here.
}

// ArgumentType classifies how an input-policy argument was resolved
// for one call: the submitter's real private data, a public mock, or
// an ordinary (non-Asset) value passed straight through.
type ArgumentType int

const (
	ArgumentReal ArgumentType = iota + 1
	ArgumentMock
	ArgumentPrivate
)

func (t ArgumentType) String() string {
	switch t {
	case ArgumentReal:
		return "REAL"
	case ArgumentMock:
		return "MOCK"
	case ArgumentPrivate:
		return "PRIVATE"
	default:
		return "UNKNOWN"
	}
}

// ExecutionResult is the captured outcome of one sandbox invocation.
type ExecutionResult struct {
	UserCodeID string      `json:"user_code_id"`
	Stdout     string      `json:"stdout"`
	Stderr     string      `json:"stderr"`
	Result     interface{} `json:"result,omitempty"`
	Err        error       `json:"-"`
	ErrMessage string      `json:"error,omitempty"`
}

// JobStatus is the lifecycle state of a dispatched Job.
type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is an execution handle: status, iteration counters, log
// identifier, and parent linkage for nested dispatch.
type Job struct {
	ID           string    `json:"id"`
	ParentJobID  string    `json:"parent_job_id,omitempty"`
	LogID        string    `json:"log_id"`
	Status       JobStatus `json:"status"`
	NIters       int       `json:"n_iters"`
	CurrentIter  int       `json:"current_iter"`
	WorkerPoolID string    `json:"worker_pool_id,omitempty"`
	UserCodeID   string    `json:"user_code_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActionObject is an opaque typed value reference, addressed by id.
type ActionObject struct {
	ID        string      `json:"id"`
	LineageID string      `json:"lineage_id"`
	Payload   interface{} `json:"payload"`
}

// Asset is a named dataset-bound value with separate real/mock
// payloads; Data is only meaningful when the requester holds
// DataPermission for it.
type Asset struct {
	Name           string      `json:"name"`
	ActionID       string      `json:"action_id"`
	Mock           interface{} `json:"mock"`
	Data           interface{} `json:"data"`
	DataPermission bool        `json:"-"`
}

// ActionKind enumerates the kinds of queued Action the dispatcher can
// construct; UCLSE only ever emits syft_function_action.
type ActionKind string

const SyftFunctionAction ActionKind = "syft_function_action"

// Action is the queued unit of work a launch_job call produces.
type Action struct {
	Kind                  ActionKind        `json:"kind"`
	KwargIDs              map[string]string `json:"kwarg_ids"`
	FuncID                string            `json:"func_id"`
	ParentJobID           string            `json:"parent_job_id"`
	WorkerPoolID          string            `json:"worker_pool_id"`
	SubmitterKey          VerifyKey         `json:"submitter_key"`
	HasExecutePermissions bool              `json:"has_execute_permissions"`
}
