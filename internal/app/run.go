package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/buildid"
	"github.com/vk/forgebuild/internal/ctxlog"
	"github.com/vk/forgebuild/internal/evalgraph"
	"github.com/vk/forgebuild/internal/evaluator"
	"github.com/vk/forgebuild/internal/executor"
)

// Run executes one build over the loaded manifest. Non-catastrophic action
// failures are all reported at the end; a catastrophic failure or an
// interruption aborts immediately.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	graph, err := evalgraph.Build(ctx, a.model)
	if err != nil {
		return fmt.Errorf("building action graph: %w", err)
	}
	a.logger.Debug("Action graph built.", "node_count", len(graph.Actions))

	if len(graph.Actions) == 0 {
		a.logger.Warn("No actions found in manifest, nothing to do.")
		return nil
	}

	local := executor.NewLocal(cfg.Root)
	eval := evaluator.New(local, evaluator.LogNotifier{})
	engine, err := evalgraph.New(evalgraph.Options{
		NodeFn:    eval.Evaluate,
		Producers: graph.Producers,
		Groups:    graph.Groups,
		Root:      cfg.Root,
		Workers:   cfg.WorkerCount,
		IDs:       &buildid.Sequence{},
	})
	if err != nil {
		return err
	}

	a.logger.Info("Starting build.", "actions", len(graph.Actions), "workers", cfg.WorkerCount)
	report, runErr := engine.Run(ctx, graph.Actions)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			return runErr
		}
		return fmt.Errorf("build aborted: %w", runErr)
	}

	failed := report.Failed()
	for _, status := range failed {
		var already *action.AlreadyReportedError
		if errors.As(status.Err, &already) {
			// Surfaced once at the point of failure; keep the summary to a
			// single line.
			a.logger.Debug("Action failed (reported earlier).", "action", status.Action.Name)
			continue
		}
		a.logger.Error("Action failed.", "action", status.Action.Name, "error", status.Err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("build failed: %d of %d action(s) did not complete", len(failed), len(report.Statuses))
	}
	a.logger.Info("Build finished.", "actions", len(report.Statuses))
	return nil
}
