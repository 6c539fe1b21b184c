package evalgraph

import (
	"context"
	"fmt"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/artifact"
	"github.com/vk/forgebuild/internal/config"
	"github.com/vk/forgebuild/internal/ctxlog"
)

// Graph is the validated action graph built from a manifest model: the
// actions in declaration order, the producer of every derived artifact, and
// the expansion of every aggregate.
type Graph struct {
	Actions   []*action.Action
	Producers map[artifact.Artifact]*action.Action
	Groups    map[artifact.Artifact][]artifact.Artifact
}

// Build translates a manifest model into an action graph. It classifies
// every referenced path (derived when some action produces it, aggregate
// when a group declares it, source otherwise), checks that each derived
// artifact has exactly one producer, that groups are flat, and that the
// producer relation is acyclic.
func Build(ctx context.Context, model *config.Model) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	names := make(map[string]bool, len(model.Actions))
	producerSpec := make(map[string]*config.ActionSpec)
	for _, spec := range model.Actions {
		if names[spec.Name] {
			return nil, fmt.Errorf("duplicate action name %q", spec.Name)
		}
		names[spec.Name] = true
		for _, out := range spec.Outputs {
			if prev, ok := producerSpec[out]; ok {
				return nil, fmt.Errorf("output %q produced by both %q and %q", out, prev.Name, spec.Name)
			}
			producerSpec[out] = spec
		}
	}

	groupSpec := make(map[string]*config.GroupSpec, len(model.Groups))
	for _, grp := range model.Groups {
		if _, ok := groupSpec[grp.Name]; ok {
			return nil, fmt.Errorf("duplicate group name %q", grp.Name)
		}
		if _, ok := producerSpec[grp.Name]; ok {
			return nil, fmt.Errorf("group %q collides with an action output", grp.Name)
		}
		groupSpec[grp.Name] = grp
	}

	// classify maps a referenced path to its one artifact identity. Every
	// reference to a path must yield an identical value, since artifact
	// equality is structural.
	classify := func(path string) artifact.Artifact {
		if grp, ok := groupSpec[path]; ok {
			return artifact.Aggregate(grp.Name, artifact.Label(grp.Owner))
		}
		if producer, ok := producerSpec[path]; ok {
			return artifact.Derived(path, artifact.Label(producer.Owner))
		}
		return artifact.Source(path)
	}

	graph := &Graph{
		Producers: make(map[artifact.Artifact]*action.Action),
		Groups:    make(map[artifact.Artifact][]artifact.Artifact),
	}

	built := make(map[string]*action.Action, len(model.Actions))
	for _, spec := range model.Actions {
		act := &action.Action{
			Name:             spec.Name,
			Owner:            artifact.Label(spec.Owner),
			Command:          spec.Command,
			Volatile:         spec.Volatile,
			DiscoversInputs:  spec.DiscoversInputs,
			NotifyOnCacheHit: spec.NotifyOnCacheHit,
			SharedKey:        spec.SharedKey,
		}
		for _, in := range spec.Inputs {
			act.Inputs = append(act.Inputs, classify(in))
		}
		for _, in := range spec.MandatoryInputs {
			act.MandatoryInputs = append(act.MandatoryInputs, classify(in))
		}
		for _, out := range spec.Outputs {
			outArt := artifact.Derived(out, artifact.Label(spec.Owner))
			act.Outputs = append(act.Outputs, outArt)
			graph.Producers[outArt] = act
		}
		graph.Actions = append(graph.Actions, act)
		built[spec.Name] = act
	}

	for _, grp := range model.Groups {
		agg := artifact.Aggregate(grp.Name, artifact.Label(grp.Owner))
		members := make([]artifact.Artifact, 0, len(grp.Members))
		for _, member := range grp.Members {
			art := classify(member)
			if art.IsAggregate() {
				return nil, fmt.Errorf("group %q member %q is itself a group; groups must be flat", grp.Name, member)
			}
			members = append(members, art)
		}
		graph.Groups[agg] = members
	}

	if err := detectCycles(model, producerSpec, groupSpec); err != nil {
		return nil, err
	}

	logger.Debug("Action graph built.", "actions", len(graph.Actions), "derived", len(graph.Producers), "groups", len(graph.Groups))
	return graph, nil
}

// detectCycles walks the producer relation with a three-color DFS. An input
// reaching back to its own producing action would make the build spin: the
// node would restart forever waiting on a dependency it itself produces.
func detectCycles(model *config.Model, producers map[string]*config.ActionSpec, groups map[string]*config.GroupSpec) error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(model.Actions))

	// dependencies resolves the action names a spec's inputs lead to,
	// expanding group references to their members' producers.
	dependencies := func(spec *config.ActionSpec) []string {
		var deps []string
		for _, in := range spec.Inputs {
			paths := []string{in}
			if grp, ok := groups[in]; ok {
				paths = grp.Members
			}
			for _, path := range paths {
				if producer, ok := producers[path]; ok {
					deps = append(deps, producer.Name)
				}
			}
		}
		return deps
	}

	specByName := make(map[string]*config.ActionSpec, len(model.Actions))
	for _, spec := range model.Actions {
		specByName[spec.Name] = spec
	}

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case grey:
			return fmt.Errorf("dependency cycle through action %q", name)
		case black:
			return nil
		}
		color[name] = grey
		for _, dep := range dependencies(specByName[name]) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for _, spec := range model.Actions {
		if err := visit(spec.Name); err != nil {
			return err
		}
	}
	return nil
}
