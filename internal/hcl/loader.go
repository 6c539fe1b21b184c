// Package hcl implements the config.Loader interface for HCL build
// manifests. Manifests consist of `action`, `group`, and `vars` blocks;
// attribute expressions may reference `var.<name>` values declared in any
// loaded file.
package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/forgebuild/internal/config"
	"github.com/vk/forgebuild/internal/ctxlog"
	"github.com/vk/forgebuild/internal/fsutil"
	"github.com/vk/forgebuild/internal/schema"
)

// Loader is the HCL-specific implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under the given paths and merges the result
// into one model. Loading is two-phase: all `vars` blocks across all files
// are evaluated first, then action and group blocks are decoded with the
// merged `var` object in scope.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := collectManifestFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl manifest files found in %v", paths)
	}
	logger.Debug("Discovered manifest files.", "count", len(files))

	parser := hclparse.NewParser()
	var remains []remainder
	vars := make(map[string]cty.Value)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing manifest %s: %w", file, diags)
		}
		var root schema.VarsRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("decoding manifest %s: %w", file, diags)
		}
		for _, block := range root.Vars {
			if err := mergeVars(block, vars); err != nil {
				return nil, fmt.Errorf("manifest %s: %w", file, err)
			}
		}
		remains = append(remains, remainder{file: file, body: root.Remain})
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": varsObject(vars)},
	}

	model := &config.Model{}
	for _, rem := range remains {
		var blocks schema.BlocksRoot
		if diags := gohcl.DecodeBody(rem.body, evalCtx, &blocks); diags.HasErrors() {
			return nil, fmt.Errorf("decoding manifest %s: %w", rem.file, diags)
		}
		for _, act := range blocks.Actions {
			model.Actions = append(model.Actions, translateAction(act))
		}
		for _, grp := range blocks.Groups {
			model.Groups = append(model.Groups, translateGroup(grp))
		}
	}

	logger.Debug("HCL loading complete.", "actions", len(model.Actions), "groups", len(model.Groups), "vars", len(vars))
	return model, nil
}

type remainder struct {
	file string
	body hcl.Body
}

// mergeVars evaluates one vars block's attributes into the shared table.
// Values must be constant; redeclaring a name is an error.
func mergeVars(block *schema.Vars, into map[string]cty.Value) error {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("reading vars block: %w", diags)
	}
	for name, attr := range attrs {
		if _, exists := into[name]; exists {
			return fmt.Errorf("variable %q declared more than once", name)
		}
		value, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("evaluating variable %q: %w", name, diags)
		}
		into[name] = value
	}
	return nil
}

func varsObject(vars map[string]cty.Value) cty.Value {
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}

// collectManifestFiles expands each path into the .hcl files it names: a
// file path is taken as-is, a directory is searched recursively.
func collectManifestFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("manifest path %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("searching %s for manifests: %w", path, err)
		}
		files = append(files, found...)
	}
	return files, nil
}
