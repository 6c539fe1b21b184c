// Package action describes units of build work and the failure types they
// produce. An Action is an immutable description; execution state lives with
// the evaluator and the executor.
package action

import (
	"fmt"

	"github.com/vk/forgebuild/internal/artifact"
)

// Action is an immutable description of one unit of build work: consume the
// declared inputs, run the command, produce the declared outputs.
//
// Actions may be shared: two distinct Action values with the same non-empty
// SharedKey denote the same underlying work. Only one of them actually
// executes; the other adopts its result. That de-duplication belongs to the
// executor, and callers must treat an adopted result exactly like a freshly
// computed one.
type Action struct {
	// Name is a unique, human-readable identifier for the action.
	Name string
	// Owner is the label blamed in failures attributed to this action.
	Owner artifact.Label
	// Inputs is the full, ordered input set. For input-discovering actions
	// it may be a superset of what the action actually reads.
	Inputs []artifact.Artifact
	// MandatoryInputs is the subset of Inputs whose absence is always an
	// error. The tag shapes failure attribution, not resolution.
	MandatoryInputs []artifact.Artifact
	// Outputs are the artifacts the action promises to produce.
	Outputs []artifact.Artifact
	// Command is the argv executed by the local executor.
	Command []string
	// Volatile marks actions whose outputs are not a pure function of their
	// inputs. Volatile actions are forced to re-run every build.
	Volatile bool
	// DiscoversInputs marks actions that learn part of their input set only
	// while executing. Such actions get a lookup handle into the evaluation
	// context during execution; closed-input actions do not.
	DiscoversInputs bool
	// NotifyOnCacheHit marks actions that must be observed every build even
	// when cached, e.g. for side-effecting progress reporting. Like
	// Volatile, it forces a dependency on the build identity.
	NotifyOnCacheHit bool
	// SharedKey groups actions denoting identical work. Empty means the
	// action is not shared.
	SharedKey string
}

// MandatorySet returns the mandatory inputs as a set for membership checks.
func (a *Action) MandatorySet() map[artifact.Artifact]bool {
	set := make(map[artifact.Artifact]bool, len(a.MandatoryInputs))
	for _, in := range a.MandatoryInputs {
		set[in] = true
	}
	return set
}

func (a *Action) String() string {
	return fmt.Sprintf("action %q (%d inputs, %d outputs)", a.Name, len(a.Inputs), len(a.Outputs))
}
