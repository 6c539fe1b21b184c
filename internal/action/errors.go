package action

import (
	"errors"
	"fmt"

	"github.com/vk/forgebuild/internal/artifact"
)

// ExecutionError is a build-logic failure attributed to an action. It is the
// one failure type that crosses the evaluator boundary: input-resolution
// failures, upstream producer failures, and executor failures are all
// ExecutionErrors, distinguished by where they were created.
//
// Catastrophic errors abort the whole build as soon as the engine observes
// them. Non-catastrophic errors fail their node but let independent nodes
// keep evaluating, so one pass can report the maximal set of unrelated
// problems.
type ExecutionError struct {
	// Message is the human-readable description.
	Message string
	// Action is the action the failure is attributed to.
	Action *Action
	// RootCauses lists the owner labels responsible for the failure, in
	// first-seen order. Duplicates are preserved.
	RootCauses []artifact.Label
	// Catastrophic marks failures that must halt the entire build.
	Catastrophic bool
	// Cause is the underlying error, if any.
	Cause error
}

func (e *ExecutionError) Error() string {
	if e.Action != nil {
		return fmt.Sprintf("%s: %s", e.Action.Name, e.Message)
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// MissingInputError reports that an artifact has no producible content: the
// file does not exist and no action produces it. It is always
// non-catastrophic; the evaluator aggregates these by count and owner.
type MissingInputError struct {
	Artifact artifact.Artifact
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input file %s", e.Artifact.Path)
}

// AlreadyReportedError wraps an ExecutionError that has been surfaced to the
// user once already, so upstream layers propagate it structurally without
// printing it a second time. The wrapper is transparent for catastrophic
// status.
type AlreadyReportedError struct {
	Err *ExecutionError
}

func (e *AlreadyReportedError) Error() string { return e.Err.Error() }

func (e *AlreadyReportedError) Unwrap() error { return e.Err }

// IsCatastrophic reports whether err carries a catastrophic ExecutionError,
// looking through AlreadyReportedError and any other wrapping.
func IsCatastrophic(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr) && execErr.Catastrophic
}
