// Package executor runs build actions and reports their failures. The
// evaluator hands it a fully resolved input set; the executor owns process
// spawning, output metadata production, and de-duplication of shared work.
package executor

import (
	"context"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/artifact"
	"github.com/vk/forgebuild/internal/evalgraph"
	"github.com/vk/forgebuild/internal/metadata"
)

// InputLookup is the handle an input-discovering action gets back into the
// evaluation context, so inputs found mid-execution can be resolved without
// a filesystem stat. Closed-input actions never receive one; withholding it
// is the defense against accidental hidden dependencies.
type InputLookup interface {
	FetchOrFail(keys []evalgraph.Key) map[evalgraph.Key]evalgraph.Result
	ValuesMissing() bool
}

// Request carries everything an executor needs for one action invocation.
// The resolved input map and expansion map are owned by the evaluation pass
// that built them and are handed over by reference; the executor must not
// retain them past the call.
type Request struct {
	Action *action.Action
	// Inputs maps every resolved input artifact to its file metadata.
	// Aggregate inputs appear under their own identity with their self
	// digest, and each of their constituents appears individually.
	Inputs map[artifact.Artifact]metadata.File
	// ExpandedAggregates maps each aggregate input to its constituent set.
	ExpandedAggregates map[artifact.Artifact][]artifact.Artifact
	// Outputs are the artifacts the action must produce.
	Outputs []artifact.Artifact
	// Lookup is non-nil only when Action.DiscoversInputs is set.
	Lookup InputLookup
}

// Result is the settled value of an executed action: metadata for each
// declared output. Adopted marks results taken over from a shared peer
// action or from an earlier pass of the same node; callers must treat
// adopted and fresh results identically.
type Result struct {
	Outputs map[artifact.Artifact]metadata.Value
	Adopted bool
}

// OutputMetadata makes Result usable as a graph node value.
func (r *Result) OutputMetadata() map[artifact.Artifact]metadata.Value {
	return r.Outputs
}

// Executor executes actions and owns the failure hooks for execution-time
// errors, as opposed to input-resolution errors, which go through the
// evaluator's notifier.
type Executor interface {
	// Execute runs the action, or adopts an already-produced result for
	// shared or re-evaluated actions. Failures are *action.ExecutionError;
	// an interruption is returned as the context's error, untouched.
	Execute(ctx context.Context, req Request) (*Result, error)

	// ReportExecutionFailure surfaces an execution failure to the user
	// once, at the point of discovery. The evaluator wraps the error as
	// already-reported afterwards so it is never printed twice.
	ReportExecutionFailure(ctx context.Context, act *action.Action)

	// NotifyNotExecuted records that an action could not run, blaming the
	// given root causes.
	NotifyNotExecuted(ctx context.Context, act *action.Action, rootCauses []artifact.Label)
}
