package evalgraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vk/forgebuild/internal/action"
	"github.com/vk/forgebuild/internal/artifact"
	"github.com/vk/forgebuild/internal/buildid"
	"github.com/vk/forgebuild/internal/ctxlog"
	"github.com/vk/forgebuild/internal/metadata"
)

// defaultMemoSize is the metadata store's initial capacity. Run grows the
// store to cover the build's whole artifact universe before evaluating
// anything, so an entry written during a build is never evicted while that
// build still needs it.
const defaultMemoSize = 1 << 16

// Options configures an Engine.
type Options struct {
	// NodeFn evaluates a single action node for one pass.
	NodeFn NodeFunc
	// Producers maps every derived artifact to the one action producing it.
	Producers map[artifact.Artifact]*action.Action
	// Groups maps every aggregate artifact to its ordered member artifacts.
	// Members are never aggregates themselves.
	Groups map[artifact.Artifact][]artifact.Artifact
	// Root is the directory source artifact paths are resolved against.
	Root string
	// Workers caps concurrent node evaluations. Zero means no cap.
	Workers int
	// IDs supplies the monotonically advancing build identity. The engine
	// reads one identity per Run; it is constant for the duration of the
	// build.
	IDs *buildid.Sequence
	// MemoSize overrides the metadata store's initial capacity when
	// positive. Run still grows the store to the build's artifact universe,
	// so a small value can never cause mid-build eviction.
	MemoSize int
}

// Engine evaluates action nodes with memoized artifact metadata and
// restart-on-missing-dependency semantics. Metadata for an artifact is
// computed at most once per build; concurrent requests for the same artifact
// collapse into a single computation.
//
// An Engine is reusable: every Run is a new build that discards the metadata
// and node values of the previous one. Concurrent Runs are serialized.
type Engine struct {
	nodeFn    NodeFunc
	producers map[artifact.Artifact]*action.Action
	groups    map[artifact.Artifact][]artifact.Artifact
	root      string
	workers   int
	ids       *buildid.Sequence

	runMu   sync.Mutex
	memo    *lru.Cache[artifact.Artifact, Result]
	memoCap int
	flights singleflight.Group

	nodesMu sync.Mutex
	nodes   map[*action.Action]*nodeState

	buildID uint64
}

type nodeState struct {
	once  sync.Once
	value ActionValue
	err   error
}

// NodeStatus is the final disposition of one requested action node.
type NodeStatus struct {
	Action *action.Action
	Err    error
}

// Report collects per-node outcomes of a Run, in request order.
type Report struct {
	Statuses []NodeStatus
}

// Failed returns the statuses of nodes that did not produce a value.
func (r *Report) Failed() []NodeStatus {
	var out []NodeStatus
	for _, s := range r.Statuses {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// New constructs an Engine.
func New(opts Options) (*Engine, error) {
	if opts.NodeFn == nil {
		return nil, errors.New("evalgraph: NodeFn is required")
	}
	if opts.IDs == nil {
		return nil, errors.New("evalgraph: IDs is required")
	}
	size := opts.MemoSize
	if size <= 0 {
		size = defaultMemoSize
	}
	memo, err := lru.New[artifact.Artifact, Result](size)
	if err != nil {
		return nil, fmt.Errorf("evalgraph: creating metadata store: %w", err)
	}
	return &Engine{
		nodeFn:    opts.NodeFn,
		producers: opts.Producers,
		groups:    opts.Groups,
		root:      opts.Root,
		workers:   opts.Workers,
		ids:       opts.IDs,
		memo:      memo,
		memoCap:   size,
		nodes:     make(map[*action.Action]*nodeState),
	}, nil
}

// Run evaluates the requested action nodes, in parallel up to the worker
// cap. Non-catastrophic node failures are recorded in the report and leave
// sibling nodes running, so one build surfaces as many independent errors as
// possible. A catastrophic failure or an interruption cancels everything and
// is returned directly.
func (e *Engine) Run(ctx context.Context, requests []*action.Action) (*Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	logger := ctxlog.FromContext(ctx)
	e.buildID = e.ids.Next()

	// Per-build state. Metadata and node values from an earlier Run must
	// never be served again: file content may have changed since, and
	// volatile actions must re-execute once per build.
	e.memo.Purge()
	e.nodesMu.Lock()
	e.nodes = make(map[*action.Action]*nodeState)
	e.nodesMu.Unlock()

	// Entries are written at most once per build and every evaluation pass
	// relies on them staying put; capacity below the artifact universe would
	// let an eviction starve the restart loop forever.
	if universe := e.artifactUniverse(requests); universe > e.memoCap {
		e.memo.Resize(universe)
		e.memoCap = universe
	}
	logger.Debug("Build started.", "build_id", e.buildID, "requested", len(requests))

	report := &Report{Statuses: make([]NodeStatus, len(requests))}
	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i, act := range requests {
		i, act := i, act
		g.Go(func() error {
			_, err := e.evaluateNode(gctx, act)
			report.Statuses[i] = NodeStatus{Action: act, Err: err}
			if err == nil {
				return nil
			}
			if interrupted(err) {
				return err
			}
			if action.IsCatastrophic(err) {
				logger.Error("Catastrophic failure, aborting build.", "action", act.Name, "error", err)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	logger.Debug("Build finished.", "build_id", e.buildID, "failed", len(report.Failed()))
	return report, nil
}

// evaluateNode returns the memoized value of an action node, running its
// restart loop on first use. Concurrent callers share one evaluation.
func (e *Engine) evaluateNode(ctx context.Context, act *action.Action) (ActionValue, error) {
	e.nodesMu.Lock()
	st, ok := e.nodes[act]
	if !ok {
		st = &nodeState{}
		e.nodes[act] = st
	}
	e.nodesMu.Unlock()
	st.once.Do(func() {
		st.value, st.err = e.runNode(ctx, act)
	})
	return st.value, st.err
}

// artifactUniverse counts the distinct artifacts the requested nodes can
// touch, following aggregate expansions and the producer relation
// transitively. The count bounds how many metadata entries one build writes.
func (e *Engine) artifactUniverse(requests []*action.Action) int {
	arts := make(map[artifact.Artifact]bool)
	visited := make(map[*action.Action]bool)

	var visitAction func(act *action.Action)
	var visitArtifact func(art artifact.Artifact)

	visitArtifact = func(art artifact.Artifact) {
		if arts[art] {
			return
		}
		arts[art] = true
		if art.IsAggregate() {
			for _, member := range e.groups[art] {
				visitArtifact(member)
			}
			return
		}
		if producer, ok := e.producers[art]; ok {
			visitAction(producer)
		}
	}
	visitAction = func(act *action.Action) {
		if visited[act] {
			return
		}
		visited[act] = true
		for _, in := range act.Inputs {
			visitArtifact(in)
		}
		for _, out := range act.Outputs {
			visitArtifact(out)
		}
	}

	for _, act := range requests {
		visitAction(act)
	}
	return len(arts)
}

// runNode drives one node through evaluation passes until it settles. Each
// pass gets a fresh Env; a restart outcome triggers computation of whatever
// the pass found missing, then a clean re-run. Resolution is a pure function
// of the memoized metadata, so re-running from scratch is safe.
func (e *Engine) runNode(ctx context.Context, act *action.Action) (ActionValue, error) {
	logger := ctxlog.FromContext(ctx)
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		env := newPassEnv(e)
		outcome, err := e.nodeFn(ctx, act, env)
		if err != nil {
			return nil, err
		}
		if !outcome.Restart {
			e.publishOutputs(act, outcome.Value)
			logger.Debug("Node settled.", "action", act.Name, "passes", pass)
			return outcome.Value, nil
		}
		missing := env.missingKeys()
		if len(missing) == 0 {
			// A restart that declared nothing new would spin forever.
			return nil, fmt.Errorf("evalgraph: node %q restarted without missing dependencies", act.Name)
		}
		logger.Debug("Node restarting after missing dependencies.", "action", act.Name, "pass", pass, "missing", len(missing))
		if err := e.computeAll(ctx, missing); err != nil {
			return nil, err
		}
	}
}

// publishOutputs records the settled node's output metadata so downstream
// fetches resolve without recomputation. Write-once: an existing entry is
// never replaced.
func (e *Engine) publishOutputs(act *action.Action, value ActionValue) {
	if value == nil {
		return
	}
	outputs := value.OutputMetadata()
	for _, out := range act.Outputs {
		if m, ok := outputs[out]; ok {
			e.memo.ContainsOrAdd(out, Result{Value: m})
		}
	}
}

// computeAll materializes metadata for the given keys. Per-key build
// failures are stored in the memo for the next pass to classify; only an
// interruption aborts the computation itself.
func (e *Engine) computeAll(ctx context.Context, keys []Key) error {
	for _, k := range keys {
		if err := e.computeArtifact(ctx, k.Artifact); err != nil {
			return err
		}
	}
	return nil
}

// computeArtifact computes one artifact's metadata (or captures its failure)
// and stores it write-once. Concurrent computations of the same artifact are
// collapsed to a single flight.
func (e *Engine) computeArtifact(ctx context.Context, art artifact.Artifact) error {
	if e.memo.Contains(art) {
		return nil
	}
	resAny, err, _ := e.flights.Do(art.Path, func() (any, error) {
		switch {
		case art.IsAggregate():
			return e.computeAggregate(ctx, art)
		case art.IsSource():
			return e.computeSource(ctx, art), nil
		default:
			return e.computeDerived(ctx, art)
		}
	})
	if err != nil {
		return err
	}
	e.memo.ContainsOrAdd(art, resAny.(Result))
	return nil
}

// computeSource digests a workspace file. A file that does not exist is a
// missing input, not an engine error; any other read problem is folded into
// the same classification after being logged, since the evaluator treats
// unknown failure kinds as invariant violations.
func (e *Engine) computeSource(ctx context.Context, art artifact.Artifact) Result {
	path := filepath.Join(e.root, filepath.FromSlash(art.Path))
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			ctxlog.FromContext(ctx).Warn("Source artifact unreadable.", "path", art.Path, "error", err)
		}
		return Result{Err: &action.MissingInputError{Artifact: art}}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Source artifact unreadable.", "path", art.Path, "error", err)
		return Result{Err: &action.MissingInputError{Artifact: art}}
	}
	return Result{Value: metadata.FileOf(content, info.ModTime().Unix())}
}

// computeDerived evaluates the artifact's producing action and extracts the
// artifact's metadata from its result. A failed producer becomes the
// artifact's captured failure, so one bad upstream action cannot hide the
// state of its siblings.
func (e *Engine) computeDerived(ctx context.Context, art artifact.Artifact) (Result, error) {
	producer, ok := e.producers[art]
	if !ok {
		return Result{Err: &action.MissingInputError{Artifact: art}}, nil
	}
	value, err := e.evaluateNode(ctx, producer)
	if err != nil {
		if interrupted(err) {
			return Result{}, err
		}
		return Result{Err: err}, nil
	}
	m, ok := value.OutputMetadata()[art]
	if !ok {
		return Result{Err: &action.MissingInputError{Artifact: art}}, nil
	}
	return Result{Value: m}, nil
}

// computeAggregate materializes every member file and flattens them into an
// Aggregate. Members are files by construction; a failing member's captured
// failure becomes the aggregate's failure.
func (e *Engine) computeAggregate(ctx context.Context, art artifact.Artifact) (Result, error) {
	members := e.groups[art]
	constituents := make([]metadata.Constituent, 0, len(members))
	for _, member := range members {
		if err := e.computeArtifact(ctx, member); err != nil {
			return Result{}, err
		}
		res, ok := e.memo.Get(member)
		if !ok || res.Missing() {
			return Result{Err: &action.MissingInputError{Artifact: member}}, nil
		}
		if res.Err != nil {
			return Result{Err: res.Err}, nil
		}
		file, ok := res.Value.(metadata.File)
		if !ok {
			panic(fmt.Sprintf("evalgraph: aggregate %s member %s resolved to %T, want file", art.Path, member.Path, res.Value))
		}
		constituents = append(constituents, metadata.Constituent{Artifact: member, Metadata: file})
	}
	return Result{Value: metadata.NewAggregate(constituents)}, nil
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
