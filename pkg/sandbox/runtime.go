package sandbox

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/jobstore"
	"github.com/Mindburn-Labs/uclse/pkg/policy"
	"github.com/Mindburn-Labs/uclse/pkg/sandbox/interpreter"
)

// Dispatcher is the slice of pkg/dispatch.Dispatcher the Runtime needs
// to turn a domain.launch_job call into a queued nested job.
type Dispatcher interface {
	Dispatch(parentJobID string, submitter contracts.VerifyKey, funcID string, kwargs map[string]interface{}) (*contracts.Job, error)
}

// NestedLookup resolves a domain.launch_job target's bare identifier
// (already recorded in code.NestedCodes at approval time) to the
// concrete nested UserCode's input parameter names, so the
// interpreter's positional launch_job arguments can be zipped into a
// kwargs map the way the nested function's own submission declared.
type NestedLookup interface {
	InputKwargNames(userCodeID string) ([]string, error)
}

// Runtime executes one approved UserCode against a keyword argument
// map and returns a captured ExecutionResult. An execution moves
// through Prepared -> ArgsResolved -> Compiled -> Executing ->
// (Succeeded|Failed), with a policy rejection able to end it early
// from Prepared (input) or Succeeded (output).
type Runtime struct {
	Budget     ComputeBudget
	Jobs       jobstore.JobStore
	Logs       jobstore.LogStore
	Dispatcher Dispatcher
	Nested     NestedLookup
	log        *slog.Logger
}

func NewRuntime(jobs jobstore.JobStore, logs jobstore.LogStore, dispatcher Dispatcher, nested NestedLookup) *Runtime {
	return &Runtime{
		Budget:     DefaultBudget(),
		Jobs:       jobs,
		Logs:       logs,
		Dispatcher: dispatcher,
		Nested:     nested,
		log:        slog.Default().With("component", "sandbox"),
	}
}

// Execute runs one invocation of code against jobID, whose log_id and
// parent linkage are already allocated (pkg/dispatch or the top-level
// submission path creates the Job before calling Execute).
func (r *Runtime) Execute(
	jobID string,
	code *contracts.UserCode,
	submitter contracts.VerifyKey,
	kwargs map[string]interface{},
	inputPolicy policy.InputPolicy,
	outputPolicy policy.OutputPolicy,
) (*contracts.ExecutionResult, error) {
	result := &contracts.ExecutionResult{UserCodeID: code.ID}

	// Prepared -> input policy gate.
	if admit, reason := inputPolicy.Admit(kwargs); !admit {
		return result, &contracts.PolicyReject{Stage: "input", Reason: reason}
	}

	// ArgsResolved: debox_asset-equivalent argument resolution. The
	// call as a whole is marked PRIVATE if any asset resolved to its
	// real data, MOCK if any resolved to its mock, REAL otherwise.
	resolved := make(map[string]interface{}, len(kwargs))
	callMark := contracts.ArgumentReal
	for name, v := range kwargs {
		value, mark := deboxArgument(v)
		resolved[name] = value
		if mark == contracts.ArgumentPrivate || (mark == contracts.ArgumentMock && callMark != contracts.ArgumentPrivate) {
			callMark = mark
		}
	}
	r.log.Info("arguments resolved", "job_id", jobID, "user_code_id", code.ID, "call_mark", callMark.String())

	// Compiled.
	fn, fset, err := parseWrapper(code.RewrittenSource, code.UniqueFuncName)
	if err != nil {
		return result, &contracts.CompileError{Message: err.Error()}
	}
	nestedNames := make([]string, 0, len(code.NestedCodes))
	for name := range code.NestedCodes {
		nestedNames = append(nestedNames, name)
	}
	if err := compile(fn, nestedNames); err != nil {
		return result, err
	}

	if err := r.Jobs.SetStatus(jobID, contracts.JobRunning); err != nil {
		return result, fmt.Errorf("mark job running: %w", err)
	}

	// Executing.
	capture := newOutputCapture()
	logAppend := func(text string) {
		_ = r.Logs.Append(code.ID, contracts.LogEntry{JobID: jobID, Text: text})
	}
	if job, err := r.Jobs.Get(jobID); err == nil {
		logAppend = func(text string) {
			_ = r.Logs.Append(job.LogID, contracts.LogEntry{JobID: jobID, Text: text})
		}
	}

	globals := interpreter.NewEnv(nil)
	for name, nestedID := range code.NestedCodes {
		globals.Define(name, interpreter.NestedCodeRef{Name: name, CodeID: nestedID})
	}

	paramEnv := interpreter.NewEnv(globals)
	for name, v := range resolved {
		paramEnv.Define(name, v)
	}

	machine := &interpreter.Machine{
		Budget:  interpreter.Budget{GasLimitSteps: r.Budget.GasLimitSteps, TimeLimitMs: r.Budget.TimeLimitMs},
		Start:   time.Now(),
		Globals: globals,
		Fset:    fset,
		Print: func(args []interface{}) {
			printShim(capture, logAppend, args)
		},
	}

	if code.UsesDomain {
		paramEnv.Define("domain", nil) // the identifier is bound but never dereferenced as a value; selector calls route through machine.Domain
		machine.Domain = r.domainCapabilities(jobID, code.ID, submitter)
	}

	value, runErr := interpreter.Run(machine, fn.Body, paramEnv)

	result.Stdout = capture.Stdout()
	result.Stderr = capture.Stderr()

	if runErr != nil {
		var tripped *interpreter.BudgetError
		if errors.As(runErr, &tripped) {
			runErr = budgetErrorFrom(tripped)
		}
		line := machine.Line() - 2 // wrapperPreamble's two lines
		if line < 1 {
			line = 1
		}
		framed := frameTraceback(code.ServiceFuncName, code.RewrittenSource, line, runErr)
		logAppend(framed)
		result.ErrMessage = framed
		result.Err = &contracts.RuntimeError{FramedMessage: framed}
		_ = r.Jobs.SetStatus(jobID, contracts.JobFailed)
		return result, result.Err
	}

	// Succeeded -> output policy gate.
	if admit, reason := outputPolicy.Admit(value); !admit {
		_ = r.Jobs.SetStatus(jobID, contracts.JobFailed)
		return result, &contracts.PolicyReject{Stage: "output", Reason: reason}
	}
	inputPolicy.Advance(resolved)
	outputPolicy.Advance(value)

	result.Result = value
	_ = r.Jobs.SetStatus(jobID, contracts.JobSucceeded)
	r.log.Info("execution succeeded", "job_id", jobID, "user_code_id", code.ID)
	return result, nil
}

// deboxArgument substitutes an Asset's real data when the caller holds
// data permission (PRIVATE) or its mock otherwise (MOCK); everything
// that is not an Asset passes through untouched as REAL.
func deboxArgument(v interface{}) (interface{}, contracts.ArgumentType) {
	asset, ok := v.(*contracts.Asset)
	if !ok {
		return v, contracts.ArgumentReal
	}
	if asset.DataPermission {
		return asset.Data, contracts.ArgumentPrivate
	}
	return asset.Mock, contracts.ArgumentMock
}

// wrapperPreamble is prepended to rewritten source before parsing
// (go/parser requires a package clause); traceback framing re-derives
// the same two-line offset so reported line numbers point at the same
// line in code.RewrittenSource an operator would actually open.
const wrapperPreamble = "package usercode\n\n"

func parseWrapper(source, funcName string) (*ast.FuncDecl, *token.FileSet, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "usercode.go", wrapperPreamble+source, parser.AllErrors)
	if err != nil {
		return nil, nil, fmt.Errorf("unparsable rewritten source: %w", err)
	}
	for _, decl := range file.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fd.Name.Name == funcName {
			return fd, fset, nil
		}
	}
	return nil, nil, fmt.Errorf("no function named %q in rewritten source", funcName)
}

func (r *Runtime) domainCapabilities(jobID, funcID string, submitter contracts.VerifyKey) *interpreter.DomainCapabilities {
	return &interpreter.DomainCapabilities{
		InitProgress: func(n int64) { _ = r.Jobs.InitProgress(jobID, int(n)) },
		SetProgress:  func(to int64) { _ = r.Jobs.SetProgress(jobID, int(to)) },
		IncrementProgress: func(by int64) {
			_ = r.Jobs.IncrementProgress(jobID, int(by))
		},
		LaunchJob: func(ref interpreter.NestedCodeRef, args []interface{}) (interface{}, error) {
			if r.Dispatcher == nil {
				return nil, &contracts.DispatchError{Reason: "no dispatcher configured for this runtime"}
			}
			kwargs, err := r.zipLaunchArgs(ref, args)
			if err != nil {
				return nil, &contracts.DispatchError{Reason: err.Error()}
			}
			job, err := r.Dispatcher.Dispatch(jobID, submitter, ref.CodeID, kwargs)
			if err != nil {
				return nil, err
			}
			return job, nil
		},
	}
}

// zipLaunchArgs maps domain.launch_job(ref, a, b, ...)'s positional
// trailing arguments onto the nested code's own declared parameter
// names, since Go call syntax has no keyword-argument form to carry
// the names directly.
func (r *Runtime) zipLaunchArgs(ref interpreter.NestedCodeRef, args []interface{}) (map[string]interface{}, error) {
	if len(args) == 0 {
		return map[string]interface{}{}, nil
	}
	if r.Nested == nil {
		return nil, fmt.Errorf("no nested-code parameter lookup configured")
	}
	names, err := r.Nested.InputKwargNames(ref.CodeID)
	if err != nil {
		return nil, err
	}
	if len(names) != len(args) {
		return nil, fmt.Errorf("launch_job(%s, ...) expects %d argument(s), got %d", ref.Name, len(names), len(args))
	}
	kwargs := make(map[string]interface{}, len(names))
	for i, n := range names {
		kwargs[n] = args[i]
	}
	return kwargs, nil
}
