// Package usercode implements the UserCode Record & Store: the
// submission pipeline that turns raw source plus policy references
// into a content-addressed, approval-gated record, and the stores
// that persist it.
package usercode

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/uclse/pkg/approval"
	"github.com/Mindburn-Labs/uclse/pkg/codeparse"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/crypto"
	"github.com/Mindburn-Labs/uclse/pkg/policy"
)

// Submission is everything a caller supplies to Submit; it mirrors
// contracts.SubmittedCode but also carries the approval-fanout inputs
// the client-side record has no business knowing (node identity, input
// owners), which the submission pipeline needs to build the initial
// ApprovalCollection.
type Submission struct {
	contracts.SubmittedCode
	SubmitterVerifyKey contracts.VerifyKey
	NodeUID            string
	NodeType           contracts.NodeType
	Self               contracts.NodeIdentity   // this node's identity (domain node approval entry)
	InputOwners        []contracts.NodeIdentity // enclave node approval entries
	DefaultWorkerPool  string
}

// Pipeline runs the submission steps against a Store and Policy
// Binder, producing a persisted UserCode or a Duplicate error naming
// the existing record.
type Pipeline struct {
	Store  Store
	Binder *policy.Binder
}

func NewPipeline(store Store, binder *policy.Binder) *Pipeline {
	return &Pipeline{Store: store, Binder: binder}
}

// Submit runs the eleven-step pipeline. Each step is a pure
// transformation over a staging record; any failure aborts the whole
// submission without mutating the store.
func (p *Pipeline) Submit(s Submission) (*contracts.UserCode, error) {
	// Step 2: hash raw source before anything else touches it, so the
	// duplicate check below sees exactly what the submitter sent.
	codeHash := crypto.HashSource(s.RawSource)

	if existing, ok := p.Store.FindByKey(s.SubmitterVerifyKey, codeHash); ok {
		return nil, &contracts.Duplicate{ExistingID: existing.ID}
	}

	// Step 1: generate stable id.
	id := uuid.NewString()

	// Step 3: compute the three func names. service_func_name is the
	// submitter's own name; unique_func_name must be a pure function of
	// (service_func_name, submitter_verify_key, code_hash), so it is
	// derived from a hash of those three values rather than the
	// record's (random) id. user_unique_func_name additionally folds in
	// the submit time, so two submissions of the identical source by
	// the identical submitter still get visibly distinct debug names.
	submitTime := time.Now().UTC()
	uniqueFuncName := fmt.Sprintf("user_func_%s_%s", sanitizeFuncName(s.FuncName), crypto.DeriveUniqueFuncName(s.FuncName, string(s.SubmitterVerifyKey), codeHash))
	userUniqueFuncName := fmt.Sprintf("%s_%s_%d", sanitizeFuncName(s.FuncName), s.SubmitterVerifyKey, submitTime.UnixNano())

	// Step 4: resolve input/output policy types via the Binder. Binding
	// is attempted here purely to validate the reference and materialize
	// non-sentinel initial state; the concrete instance itself is
	// discarded — the Executor (pkg/worker) re-binds fresh per execution
	// from the stored PolicySpec.
	inputPolicy, err := p.Binder.BindInput(s.InputPolicy)
	if err != nil {
		return nil, err
	}
	outputPolicy, err := p.Binder.BindOutput(s.OutputPolicy)
	if err != nil {
		return nil, err
	}
	inputState, err := policy.InitialInputState(inputPolicy)
	if err != nil {
		return nil, fmt.Errorf("materialize input policy state: %w", err)
	}
	outputState, err := policy.InitialOutputState(outputPolicy)
	if err != nil {
		return nil, fmt.Errorf("materialize output policy state: %w", err)
	}

	// Step 5: rewrite code via the Normalizer.
	normalized, err := codeparse.Normalize(s.RawSource, s.FuncName, uniqueFuncName)
	if err != nil {
		return nil, err
	}

	// Step 6: nested launch-job call targets are already located by the
	// Normalizer (normalized.NestedRequests); binding a request name to a
	// concrete existing UserCode id is a separate, later operation
	// (BindNested below), since the nested code may not exist yet at
	// submission time.

	// Step 8: initialize ApprovalCollection for this node type.
	var approvalColl contracts.ApprovalCollection
	switch s.NodeType {
	case contracts.NodeTypeEnclave:
		approvalColl = approval.NewForEnclaveNode(s.InputOwners...)
	default:
		approvalColl = approval.NewForDomainNode(s.Self)
	}

	workerPool := s.WorkerPoolID
	if workerPool == "" {
		// Step 11: bind the node's default pool when none was specified.
		workerPool = s.DefaultWorkerPool
	}

	record := &contracts.UserCode{
		Version:            contracts.CurrentRecordVersion,
		ID:                 id,
		SubmitterVerifyKey: s.SubmitterVerifyKey, // step 7
		RawSource:          s.RawSource,
		RewrittenSource:    normalized.WrapperSource,
		CodeHash:           codeHash,
		ServiceFuncName:    s.FuncName,
		UniqueFuncName:     uniqueFuncName,
		UserUniqueFuncName: userUniqueFuncName,
		InputKwargNames:    normalized.ParamNames,
		InputPolicy:        contracts.PolicySpec{TypeTag: s.InputPolicy.TypeTag, InitKwargs: s.InputPolicy.InitKwargs, State: inputState},
		OutputPolicy:       contracts.PolicySpec{TypeTag: s.OutputPolicy.TypeTag, InitKwargs: s.OutputPolicy.InitKwargs, State: outputState},
		Approval:           approvalColl,
		SubmitTime:         submitTime, // step 10
		UsesDomain:         normalized.UsesDomain,
		NestedRequests:     normalized.NestedRequests,
		NestedCodes:        map[string]string{},
		WorkerPoolID:    workerPool,
		NodeUID:         s.NodeUID, // step 9
		Environment:     s.Environment,
	}

	if err := p.Store.Create(record); err != nil {
		return nil, err
	}
	return record, nil
}

// BindNested resolves one of codeID's outstanding nested_requests names
// to an existing, already-submitted UserCode id, recording the binding
// in nested_codes for the Sandbox Runtime to consult at execution time.
func (p *Pipeline) BindNested(codeID, requestedName, targetCodeID string) error {
	record, err := p.Store.Get(codeID)
	if err != nil {
		return err
	}
	if _, ok := record.NestedRequests[requestedName]; !ok {
		return fmt.Errorf("user code %s has no pending nested request named %q", codeID, requestedName)
	}
	if _, err := p.Store.Get(targetCodeID); err != nil {
		return fmt.Errorf("nested target %s: %w", targetCodeID, err)
	}
	if err := p.checkNestedCycle(codeID, targetCodeID); err != nil {
		return err
	}
	record.NestedCodes[requestedName] = targetCodeID
	return p.Store.Update(record)
}

// checkNestedCycle refuses a binding that would make codeID reachable
// from targetCodeID through the nested_codes tables: nested references
// are id-indirected lookups rather than in-record pointers precisely
// so the store can detect and reject a cycle before it is ever
// instantiated.
func (p *Pipeline) checkNestedCycle(codeID, targetCodeID string) error {
	visited := map[string]bool{}
	stack := []string{targetCodeID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == codeID {
			return fmt.Errorf("binding %s would create a nested-code cycle through %s", targetCodeID, codeID)
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		record, err := p.Store.Get(current)
		if err != nil {
			continue
		}
		for _, next := range record.NestedCodes {
			stack = append(stack, next)
		}
	}
	return nil
}

// sanitizeFuncName strips characters that would make a derived func
// name an invalid Go identifier fragment; the derived names above sit
// inside generated wrapper source, where a stray unicode byte would
// otherwise make the wrapper unparsable.
func sanitizeFuncName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "f"
	}
	return string(out)
}
