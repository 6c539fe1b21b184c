// Package evaluator implements the per-node evaluation function for build
// actions: resolve the action's declared inputs against the graph, restart
// when anything is not yet computed, hand off to the executor, and declare
// the follow-up dependencies of input-discovering actions.
//
// The graph engine may invoke Evaluate many times for one action. Every pass
// rebuilds its state from scratch; the only non-idempotent step is the
// executor invocation, which is guarded so it happens exactly when input
// resolution is confirmed complete.
package evaluator

import (
	"context"
	"errors"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/artifact"
	"github.com/vk/forgebuild/internal/ctxlog"
	"github.com/vk/forgebuild/internal/evalgraph"
	"github.com/vk/forgebuild/internal/executor"
)

// Notifier is the collaborator told about input-resolution failures,
// independent of the failure propagated to the graph. It receives the action
// and the owner labels blamed for its unusable inputs.
type Notifier interface {
	NotifyResolutionFailure(ctx context.Context, act *action.Action, rootCauses []artifact.Label)
}

// LogNotifier reports resolution failures to the build log.
type LogNotifier struct{}

// NotifyResolutionFailure implements Notifier.
func (LogNotifier) NotifyResolutionFailure(ctx context.Context, act *action.Action, rootCauses []artifact.Label) {
	causes := make([]string, len(rootCauses))
	for i, c := range rootCauses {
		causes[i] = string(c)
	}
	ctxlog.FromContext(ctx).Warn("Input resolution failed.", "action", act.Name, "root_causes", causes)
}

// Evaluator evaluates action nodes. Its Evaluate method is the node function
// plugged into the graph engine.
type Evaluator struct {
	executor executor.Executor
	notifier Notifier
}

// New returns an Evaluator executing through exec and reporting resolution
// failures to notifier.
func New(exec executor.Executor, notifier Notifier) *Evaluator {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Evaluator{executor: exec, notifier: notifier}
}

// Evaluate runs one evaluation pass for act. It returns a restart outcome
// whenever a requested value is not yet computed, a final outcome carrying
// the executor's result, or a failure. An interruption propagates as the
// context's error, distinct from any build failure.
func (ev *Evaluator) Evaluate(ctx context.Context, act *action.Action, env evalgraph.Env) (evalgraph.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	resolved, err := ev.checkInputs(ctx, act, env)
	if err != nil {
		execErr := asExecutionError(err)
		if execErr == nil {
			return evalgraph.Outcome{}, err
		}
		ev.notifier.NotifyResolutionFailure(ctx, act, execErr.RootCauses)
		return evalgraph.Outcome{}, err
	}

	// Volatile actions and cache-hit-notifying actions take an artificial
	// dependency on the always-changing build identity, trading one forced
	// dirtying per build for never being cached away.
	if act.Volatile || act.NotifyOnCacheHit {
		env.BuildID()
	}
	if env.ValuesMissing() {
		logger.Debug("Dependencies not yet available, deferring.", "action", act.Name)
		return evalgraph.Outcome{Restart: true}, nil
	}

	// Input resolution is complete; from here on the pass is allowed its
	// one side-effecting step. The executor transparently returns an
	// already-produced result when a shared peer executed first or when
	// this node is re-evaluated after discovery declared new inputs.
	var lookup executor.InputLookup
	if act.DiscoversInputs {
		lookup = env
	}
	result, execFailure := ev.executor.Execute(ctx, executor.Request{
		Action:             act,
		Inputs:             resolved.files,
		ExpandedAggregates: resolved.expanded,
		Outputs:            act.Outputs,
		Lookup:             lookup,
	})

	// Runs regardless of execution success, mirroring a deferred cleanup:
	// source inputs of discovering actions stay tracked for dirtiness even
	// when the action only conditionally reads them.
	ev.declareAdditionalDependencies(env, act)

	if execFailure != nil {
		if interrupted(execFailure) || ctx.Err() != nil {
			return evalgraph.Outcome{}, execFailure
		}
		execErr := asExecutionError(execFailure)
		if execErr == nil {
			panic("evaluator: executor returned a failure that is not an execution error")
		}
		// The executor's own hook surfaces the failure once; the wrapper
		// tells upstream reporting not to print it again.
		ev.executor.ReportExecutionFailure(ctx, act)
		ev.executor.NotifyNotExecuted(ctx, act, execErr.RootCauses)
		return evalgraph.Outcome{}, &action.AlreadyReportedError{Err: execErr}
	}

	if env.ValuesMissing() {
		logger.Debug("Discovered dependencies not yet available, deferring.", "action", act.Name)
		return evalgraph.Outcome{Restart: true}, nil
	}
	return evalgraph.Outcome{Value: result}, nil
}

// declareAdditionalDependencies registers the source artifacts among a
// discovering action's declared inputs as graph dependencies. Derived inputs
// are already tracked through their producers; source files are only seen by
// the graph if declared here.
func (ev *Evaluator) declareAdditionalDependencies(env evalgraph.Env, act *action.Action) {
	if !act.DiscoversInputs {
		return
	}
	var sources []artifact.Artifact
	for _, in := range act.Inputs {
		if in.IsSource() {
			sources = append(sources, in)
		}
	}
	if len(sources) == 0 {
		return
	}
	env.Fetch(toKeys(sources, act.MandatorySet()))
}

// asExecutionError extracts the ExecutionError carried by err, looking
// through already-reported wrapping. Nil when err is not a build-logic
// failure.
func asExecutionError(err error) *action.ExecutionError {
	var execErr *action.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return nil
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
