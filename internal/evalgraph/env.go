// Package evalgraph is the memoizing graph evaluator that drives action
// nodes. It owns node scheduling, artifact metadata memoization, and the
// restart loop; the per-node evaluation logic itself is supplied as a
// NodeFunc (see the evaluator package).
package evalgraph

import (
	"context"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/artifact"
	"github.com/vk/forgebuild/internal/metadata"
)

// Key requests one artifact's metadata from the graph. Mandatory records
// whether the requesting action listed the artifact among its mandatory
// inputs; the tag shapes how a missing artifact is attributed downstream,
// never whether it resolves.
type Key struct {
	Artifact  artifact.Artifact
	Mandatory bool
}

// Result is one entry of a batched fetch: a metadata value, a captured
// per-key failure, or neither. The zero Result means the key's value has not
// been computed yet this build; whichever pass observed it must see
// Env.ValuesMissing() report true and restart.
type Result struct {
	Value metadata.Value
	Err   error
}

// Missing reports whether the entry carries neither a value nor a failure.
func (r Result) Missing() bool { return r.Value == nil && r.Err == nil }

// Env is one evaluation pass's window into the graph. A fresh Env is handed
// to the node function on every pass; nothing recorded on it survives a
// restart.
//
// The restart contract: any fetch may come back with missing entries. Once
// that happens the pass must finish without externally visible side effects
// and return a restart outcome; the engine computes the missing values and
// re-invokes the node function from scratch with a new Env.
type Env interface {
	// FetchOrFail requests a batch of keys at once. Every key gets an
	// entry: a value, a captured per-key failure, or a zero Result when the
	// value is not yet computed. One bad key never hides the others, and no
	// per-key completion order is guaranteed.
	FetchOrFail(keys []Key) map[Key]Result

	// Fetch declares dependencies on keys without needing their values this
	// pass. Used to track conditionally read source inputs for dirtiness.
	Fetch(keys []Key)

	// ValuesMissing reports whether any key requested so far this pass
	// (including the build identity) has no computed value yet. When true,
	// the pass must return a restart outcome and do nothing further.
	ValuesMissing() bool

	// BuildID declares a dependency on the process-wide build identity and
	// returns it. ok is false while the identity is not yet available, in
	// which case the dependency counts as missing. Volatile actions use
	// this as an always-changing input so they are never cached away.
	BuildID() (id uint64, ok bool)
}

// ActionValue is the value a successfully evaluated action node settles to.
// The engine uses it to serve the action's output artifacts to downstream
// fetches. Results adopted from a shared peer action satisfy it identically
// to freshly computed ones.
type ActionValue interface {
	OutputMetadata() map[artifact.Artifact]metadata.Value
}

// Outcome is the three-way result of one evaluation pass over a node:
// a final value, or a restart request. Failures travel as the error return
// beside it, never as a sentinel value.
type Outcome struct {
	Value   ActionValue
	Restart bool
}

// NodeFunc evaluates one action node for one pass. The engine may invoke it
// many times for the same action as missing dependencies become available;
// it must be side-effect free up to its final ValuesMissing check.
type NodeFunc func(ctx context.Context, act *action.Action, env Env) (Outcome, error)
