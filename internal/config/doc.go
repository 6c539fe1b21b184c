// Package config defines the format-agnostic model of a build manifest,
// along with the Loader interface for reading it from a concrete format.
//
// The config.Model is the single source of truth for graph construction:
// it lists the actions a build can evaluate and the aggregate groups their
// inputs may reference. Concrete loaders, such as the HCL one, live in
// separate packages.
package config
