package config

import "context"

// Model is the unified, format-agnostic representation of a build manifest.
type Model struct {
	Actions []*ActionSpec
	Groups  []*GroupSpec
}

// ActionSpec describes one action block from a manifest. Paths are
// exec-root-relative; whether an input is a source file, a derived output,
// or a group reference is determined during graph construction, not here.
type ActionSpec struct {
	Name             string
	Owner            string
	Command          []string
	Inputs           []string
	MandatoryInputs  []string
	Outputs          []string
	Volatile         bool
	DiscoversInputs  bool
	NotifyOnCacheHit bool
	SharedKey        string
}

// GroupSpec describes an aggregate group block: a named virtual artifact
// standing in for its member paths. Members may not reference other groups.
type GroupSpec struct {
	Name    string
	Owner   string
	Members []string
}

// Loader is the interface for a format-specific manifest loader.
type Loader interface {
	// Load reads manifests from the given paths (files or directories),
	// translates them into the format-agnostic model, and merges them.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
