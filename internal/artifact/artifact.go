// Package artifact defines the identity model for files flowing through the
// build graph. An Artifact names a file (or an aggregate grouping of files);
// it says nothing about the file's content. Content identity lives in the
// metadata package.
package artifact

import "fmt"

// Label identifies the configured target that owns an artifact or action.
// Failures blame labels, not paths, so that error reporting points at the
// thing a user can fix. The zero value means "no known owner".
type Label string

// Kind distinguishes how an artifact comes into existence.
type Kind int

const (
	// SourceKind marks an artifact that exists in the workspace and is not
	// produced by any action.
	SourceKind Kind = iota
	// DerivedKind marks an artifact produced by exactly one action.
	DerivedKind
	// AggregateKind marks a virtual artifact standing in for a group of
	// underlying file artifacts as a single dependency edge.
	AggregateKind
)

func (k Kind) String() string {
	switch k {
	case SourceKind:
		return "source"
	case DerivedKind:
		return "derived"
	case AggregateKind:
		return "aggregate"
	default:
		panic(fmt.Sprintf("artifact: unknown kind %d", int(k)))
	}
}

// Artifact is an immutable file identity. Two artifacts are the same input
// exactly when their struct values are equal; content never participates in
// equality. Artifact is comparable and safe to use as a map key.
type Artifact struct {
	// Path is the exec-root-relative path that identifies the artifact.
	Path string
	// Owner is the label blamed when this artifact is missing or its
	// producer fails. Empty for unowned artifacts.
	Owner Label
	// Kind records whether the artifact is a source file, a derived output,
	// or an aggregate.
	Kind Kind
}

// Source returns a source artifact identity for a workspace file.
func Source(path string) Artifact {
	return Artifact{Path: path, Kind: SourceKind}
}

// Derived returns an artifact identity for the output of an action.
func Derived(path string, owner Label) Artifact {
	return Artifact{Path: path, Owner: owner, Kind: DerivedKind}
}

// Aggregate returns a virtual artifact identity grouping other artifacts.
func Aggregate(path string, owner Label) Artifact {
	return Artifact{Path: path, Owner: owner, Kind: AggregateKind}
}

// IsSource reports whether the artifact is a workspace file rather than the
// output of an action.
func (a Artifact) IsSource() bool { return a.Kind == SourceKind }

// IsAggregate reports whether the artifact expands into constituent files.
func (a Artifact) IsAggregate() bool { return a.Kind == AggregateKind }

func (a Artifact) String() string {
	return fmt.Sprintf("%s[%s]", a.Path, a.Kind)
}
