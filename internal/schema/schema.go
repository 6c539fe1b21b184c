// Package schema holds the HCL block structures of the build manifest
// format. These are decode targets only; the format-agnostic model lives in
// the config package.
package schema

import "github.com/hashicorp/hcl/v2"

// Action represents an `action "name" { ... }` block: one unit of build
// work, its declared artifact sets, and its execution flags.
type Action struct {
	Name             string   `hcl:"name,label"`
	Owner            string   `hcl:"owner,optional"`
	Command          []string `hcl:"command"`
	Inputs           []string `hcl:"inputs,optional"`
	MandatoryInputs  []string `hcl:"mandatory_inputs,optional"`
	Outputs          []string `hcl:"outputs"`
	Volatile         bool     `hcl:"volatile,optional"`
	DiscoversInputs  bool     `hcl:"discovers_inputs,optional"`
	NotifyOnCacheHit bool     `hcl:"notify_on_cache_hit,optional"`
	SharedKey        string   `hcl:"shared_key,optional"`
}

// Group represents a `group "name" { ... }` block: a virtual aggregate
// artifact standing in for its member files as one dependency edge.
type Group struct {
	Name    string   `hcl:"name,label"`
	Owner   string   `hcl:"owner,optional"`
	Members []string `hcl:"members"`
}

// Vars represents the `vars { ... }` block. Its attributes become the `var`
// object available to expressions in the rest of the file.
type Vars struct {
	Body hcl.Body `hcl:",remain"`
}

// VarsRoot is the first decode pass over a manifest file: collect vars
// blocks, leave everything else for the second pass.
type VarsRoot struct {
	Vars   []*Vars  `hcl:"vars,block"`
	Remain hcl.Body `hcl:",remain"`
}

// BlocksRoot is the second decode pass, evaluated with the vars in scope.
type BlocksRoot struct {
	Actions []*Action `hcl:"action,block"`
	Groups  []*Group  `hcl:"group,block"`
}
