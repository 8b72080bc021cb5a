// Package api implements the node's request surface: SubmitCode,
// ApproveCode, DenyCode, ExecuteCode, GetResult. It is the one place
// that knows how to stitch the Policy Binder, Approval State Machine,
// UserCode Store, Sandbox Runtime, and Result & Log Surface together
// into the operations a client actually calls; none of those packages
// import each other for this purpose.
package api

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/uclse/pkg/approval"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/observability"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
	"github.com/Mindburn-Labs/uclse/pkg/worker"
)

// Service wires one node's subsystems into the five client-facing
// operations. Execution runs through the node's single worker.Executor,
// which holds the per-record lock registry the policy-state writeback
// invariant requires — shared with the worker pool, so a direct
// ExecuteCode and a dispatched nested job of the same code id
// serialize against each other.
type Service struct {
	Store    usercode.Store
	Pipeline *usercode.Pipeline
	Executor *worker.Executor
	Jobs     jobstore.JobStore
	Logs     jobstore.LogStore
	Results  jobstore.ResultStore
	Tracer   *observability.Provider // optional; nil disables spans
	log      *slog.Logger
	locks    *usercode.RecordLocks
}

// NewService builds a Service from a node's already-launched
// subsystems (see pkg/orchestration.NodeHandle, whose accessors supply
// everything here).
func NewService(pipeline *usercode.Pipeline, executor *worker.Executor, jobs jobstore.JobStore, logs jobstore.LogStore, tracer *observability.Provider) *Service {
	return &Service{
		Store:    pipeline.Store,
		Pipeline: pipeline,
		Executor: executor,
		Jobs:     jobs,
		Logs:     logs,
		Results:  executor.Results,
		Tracer:   tracer,
		log:      slog.Default().With("component", "api"),
		locks:    executor.Locks,
	}
}

func (s *Service) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if s.Tracer == nil {
		return ctx, func(error) {}
	}
	return s.Tracer.TrackOperation(ctx, name, attrs...)
}

// SubmitCode runs the UserCode submission pipeline. A Duplicate error
// is returned, not treated as fatal, when the submitter has already
// submitted this exact source.
func (s *Service) SubmitCode(ctx context.Context, submission usercode.Submission) (*contracts.UserCode, error) {
	_, end := s.track(ctx, "uclse.submit_code",
		attribute.String("uclse.submitter", string(submission.SubmitterVerifyKey)),
		attribute.String("uclse.func_name", submission.FuncName),
	)
	record, err := s.Pipeline.Submit(submission)
	end(err)
	if err != nil {
		if dup, ok := err.(*contracts.Duplicate); ok {
			s.log.Info("duplicate submission", "existing_id", dup.ExistingID)
			return nil, dup
		}
		s.log.Warn("submit rejected", "error", err)
		return nil, err
	}
	s.log.Info("code submitted", "code_id", record.ID, "func_name", record.ServiceFuncName)
	return record, nil
}

// ApproveCode transitions nodeIdentity's entry in codeID's
// ApprovalCollection to Approved.
func (s *Service) ApproveCode(ctx context.Context, codeID string, nodeIdentity contracts.NodeIdentity, reason string) error {
	return s.transitionApproval(ctx, codeID, nodeIdentity, contracts.ApprovalApproved, reason)
}

// DenyCode transitions nodeIdentity's entry in codeID's
// ApprovalCollection to Denied.
func (s *Service) DenyCode(ctx context.Context, codeID string, nodeIdentity contracts.NodeIdentity, reason string) error {
	return s.transitionApproval(ctx, codeID, nodeIdentity, contracts.ApprovalDenied, reason)
}

func (s *Service) transitionApproval(ctx context.Context, codeID string, nodeIdentity contracts.NodeIdentity, to contracts.ApprovalStatus, reason string) error {
	_, end := s.track(ctx, "uclse.approval_transition",
		attribute.String("uclse.code_id", codeID),
		attribute.String("uclse.to_status", string(to)),
	)

	lock := s.locks.ForID(codeID)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.Store.Get(codeID)
	if err != nil {
		end(err)
		return err
	}

	var transitionErr error
	if to == contracts.ApprovalApproved {
		transitionErr = approval.Approve(&record.Approval, nodeIdentity, reason)
	} else {
		transitionErr = approval.Deny(&record.Approval, nodeIdentity, reason)
	}
	if transitionErr != nil {
		end(transitionErr)
		return transitionErr
	}

	if err := s.Store.Update(record); err != nil {
		end(err)
		return err
	}
	end(nil)
	s.log.Info("approval transitioned", "code_id", codeID, "node_id", nodeIdentity.NodeID, "status", to)
	return nil
}

// ExecuteCode allocates a top-level Job for codeID and runs it through
// the node's Executor: approval gate, policy bind, sandbox run, and
// policy-state writeback under the shared per-record lock. Returns
// NotApproved without touching policy state if the code's
// ApprovalCollection is not unanimously Approved.
func (s *Service) ExecuteCode(ctx context.Context, codeID string, submitter contracts.VerifyKey, kwargs map[string]interface{}) (*contracts.ExecutionResult, error) {
	_, end := s.track(ctx, "uclse.execute_code",
		attribute.String("uclse.code_id", codeID),
		attribute.String("uclse.submitter", string(submitter)),
	)

	record, err := s.Store.Get(codeID)
	if err != nil {
		end(err)
		return nil, err
	}

	job, err := s.Jobs.Create("", record.ID, record.WorkerPoolID)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("allocate job: %w", err)
	}

	result, execErr := s.Executor.ExecuteOnJob(job.ID, codeID, submitter, kwargs)
	end(execErr)
	return result, execErr
}

// GetResult returns the most recently persisted ExecutionResult for
// codeID, if any.
func (s *Service) GetResult(ctx context.Context, codeID string) (*contracts.ExecutionResult, bool) {
	_, end := s.track(ctx, "uclse.get_result", attribute.String("uclse.code_id", codeID))
	result, ok := s.Results.Get(codeID)
	end(nil)
	return result, ok
}
