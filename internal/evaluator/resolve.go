package evaluator

import (
	"context"
	"fmt"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/artifact"
	"github.com/vk/forgebuild/internal/ctxlog"
	"github.com/vk/forgebuild/internal/evalgraph"
	"github.com/vk/forgebuild/internal/metadata"
)

// resolvedInputs is the product of one successful input resolution: file
// metadata for every input (aggregates appear under their own identity with
// their self digest, next to each of their constituents) and the expansion
// set of every aggregate input. Built fresh per evaluation pass and handed
// by reference to the executor; nothing here survives a restart.
type resolvedInputs struct {
	files    map[artifact.Artifact]metadata.File
	expanded map[artifact.Artifact][]artifact.Artifact
}

// toKeys builds the batched fetch request for an action's inputs: one key
// per distinct artifact, tagged mandatory when the artifact appears in the
// mandatory subset. Order follows the declared input order so that failure
// attribution is deterministic.
func toKeys(inputs []artifact.Artifact, mandatory map[artifact.Artifact]bool) []evalgraph.Key {
	keys := make([]evalgraph.Key, 0, len(inputs))
	seen := make(map[artifact.Artifact]bool, len(inputs))
	for _, in := range inputs {
		if seen[in] {
			continue
		}
		seen[in] = true
		keys = append(keys, evalgraph.Key{Artifact: in, Mandatory: mandatory[in]})
	}
	return keys
}

// checkInputs resolves the action's declared inputs against the evaluation
// context in one batched fetch, so the graph can parallelize and one bad
// input cannot hide the state of the others.
//
// Failure classification, per entry:
//   - missing input file: counted, owner appended to the root causes,
//     processing continues;
//   - upstream execution failure: the first one encountered is retained as
//     the representative cause, later ones are forwarded to the executor's
//     not-executed hook and then suppressed;
//   - anything else is an engine invariant violation and panics.
//
// An upstream execution failure outranks missing inputs: a failed producer
// is a more specific diagnosis than "file missing", which may only be its
// symptom. Uncomputed entries are skipped here; the caller observes them via
// Env.ValuesMissing and restarts.
func (ev *Evaluator) checkInputs(ctx context.Context, act *action.Action, env evalgraph.Env) (*resolvedInputs, error) {
	keys := toKeys(act.Inputs, act.MandatorySet())
	results := env.FetchOrFail(keys)

	resolved := &resolvedInputs{
		files:    make(map[artifact.Artifact]metadata.File, len(keys)),
		expanded: make(map[artifact.Artifact][]artifact.Artifact),
	}
	missingCount := 0
	var rootCauses []artifact.Label
	var firstUpstreamFailure *action.ExecutionError

	for _, key := range keys {
		res := results[key]
		if res.Missing() {
			continue
		}
		if res.Err != nil {
			switch err := res.Err.(type) {
			case *action.MissingInputError:
				missingCount++
				if owner := err.Artifact.Owner; owner != "" {
					rootCauses = append(rootCauses, owner)
				}
			default:
				upstream := asExecutionError(res.Err)
				if upstream == nil {
					// Only the two build-time failure kinds can reach a
					// fetch entry; anything else is a programming error.
					panic(fmt.Sprintf("evaluator: unexpected failure kind %T for input %s", res.Err, key.Artifact.Path))
				}
				if firstUpstreamFailure == nil {
					firstUpstreamFailure = upstream
				}
				ev.executor.NotifyNotExecuted(ctx, act, upstream.RootCauses)
			}
			continue
		}
		switch value := res.Value.(type) {
		case metadata.File:
			resolved.files[key.Artifact] = value
		case metadata.Aggregate:
			expansion := make([]artifact.Artifact, 0, len(value.Constituents()))
			for _, c := range value.Constituents() {
				resolved.files[c.Artifact] = c.Metadata
				expansion = append(expansion, c.Artifact)
			}
			// The aggregate's own digest is recorded too: the action cache
			// keys on it when the aggregate itself is an input.
			resolved.files[key.Artifact] = value.Self()
			resolved.expanded[key.Artifact] = expansion
		default:
			panic(fmt.Sprintf("evaluator: unexpected metadata kind %T for input %s", res.Value, key.Artifact.Path))
		}
	}

	// The first upstream failure carries the most useful message; it wins
	// over a synthesized missing-input summary.
	if firstUpstreamFailure != nil {
		return nil, firstUpstreamFailure
	}
	if missingCount > 0 {
		ctxlog.FromContext(ctx).Debug("Input resolution found missing inputs.",
			"action", act.Name, "missing", missingCount)
		return nil, &action.ExecutionError{
			Message:    fmt.Sprintf("%d input file(s) do not exist", missingCount),
			Action:     act,
			RootCauses: rootCauses,
		}
	}
	return resolved, nil
}
