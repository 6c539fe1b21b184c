package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/artifact"
	"github.com/vk/forgebuild/internal/ctxlog"
	"github.com/vk/forgebuild/internal/metadata"
)

// Local executes actions as subprocesses under an exec root and digests
// their declared outputs.
//
// It owns two result de-duplications: shared actions (same SharedKey) run at
// most once, with every other instance adopting the produced result; and a
// node re-evaluated after a restart adopts its own first run's result
// instead of executing again. Concurrent requests for the same work collapse
// into a single in-flight execution.
//
// A Local is scoped to one build: produced results are retained for adoption
// and never invalidated, so every build must construct its own instance.
type Local struct {
	root    string
	flights singleflight.Group
	results sync.Map // execution key -> *Result
}

// NewLocal returns a Local executor rooted at dir. Commands run with dir as
// their working directory and output paths resolve against it.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Execute implements Executor.
func (l *Local) Execute(ctx context.Context, req Request) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("action", req.Action.Name)
	key := executionKey(req.Action)

	if cached, ok := l.results.Load(key); ok {
		logger.Debug("Adopting previously produced result.", "key", key)
		return adopt(cached.(*Result)), nil
	}

	owner := false
	v, err, _ := l.flights.Do(key, func() (any, error) {
		owner = true
		return l.run(ctx, req)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	res := v.(*Result)
	l.results.Store(key, res)
	if !owner {
		logger.Debug("Adopting result produced by shared peer.", "key", key)
		return adopt(res), nil
	}
	return res, nil
}

// ReportExecutionFailure implements Executor.
func (l *Local) ReportExecutionFailure(ctx context.Context, act *action.Action) {
	ctxlog.FromContext(ctx).Error("Action failed to execute.", "action", act.Name, "owner", string(act.Owner))
}

// NotifyNotExecuted implements Executor.
func (l *Local) NotifyNotExecuted(ctx context.Context, act *action.Action, rootCauses []artifact.Label) {
	causes := make([]string, len(rootCauses))
	for i, c := range rootCauses {
		causes[i] = string(c)
	}
	ctxlog.FromContext(ctx).Warn("Action not executed.", "action", act.Name, "root_causes", causes)
}

// run spawns the action's command and digests its declared outputs.
func (l *Local) run(ctx context.Context, req Request) (*Result, error) {
	act := req.Action
	logger := ctxlog.FromContext(ctx).With("action", act.Name)

	if len(act.Command) == 0 {
		return nil, l.failure(act, "action has no command")
	}

	logger.Debug("Starting action.", "command", strings.Join(act.Command, " "))
	cmd := exec.CommandContext(ctx, act.Command[0], act.Command[1:]...)
	cmd.Dir = l.root
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := fmt.Sprintf("command failed: %v", err)
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			msg = fmt.Sprintf("%s: %s", msg, trimmed)
		}
		return nil, l.failure(act, msg)
	}

	outputs := make(map[artifact.Artifact]metadata.Value, len(req.Outputs))
	for _, out := range req.Outputs {
		path := filepath.Join(l.root, filepath.FromSlash(out.Path))
		info, statErr := os.Stat(path)
		if statErr != nil {
			return nil, l.failure(act, fmt.Sprintf("declared output %s was not created", out.Path))
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, l.failure(act, fmt.Sprintf("reading output %s: %v", out.Path, readErr))
		}
		outputs[out] = metadata.FileOf(content, info.ModTime().Unix())
	}

	logger.Debug("Action finished.", "outputs", len(outputs))
	return &Result{Outputs: outputs}, nil
}

func (l *Local) failure(act *action.Action, msg string) *action.ExecutionError {
	var causes []artifact.Label
	if act.Owner != "" {
		causes = []artifact.Label{act.Owner}
	}
	return &action.ExecutionError{
		Message:    msg,
		Action:     act,
		RootCauses: causes,
	}
}

// adopt returns a copy of res marked as adopted, leaving the stored result
// untouched for further adopters.
func adopt(res *Result) *Result {
	return &Result{Outputs: res.Outputs, Adopted: true}
}

// executionKey identifies the unit of work an action denotes. Shared actions
// key by their shared group; everything else keys by action identity, so
// adoption never depends on callers keeping action names unique.
func executionKey(act *action.Action) string {
	if act.SharedKey != "" {
		return "shared:" + act.SharedKey
	}
	return fmt.Sprintf("action:%p", act)
}
