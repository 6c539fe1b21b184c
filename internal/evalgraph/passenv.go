package evalgraph

import (
	"sync"

	"github.com/vk/forgebuild/internal/artifact"
)

// passEnv is the Env handed to a node function for a single evaluation pass.
// It records which requested keys had no computed value so the engine knows
// what to materialize before the next pass. Input-discovering actions hand
// the env to the executor, which may fetch from another goroutine, so access
// is mutex-guarded.
type passEnv struct {
	engine *Engine

	mu      sync.Mutex
	missing []Key
	seen    map[artifact.Artifact]bool
}

func newPassEnv(e *Engine) *passEnv {
	return &passEnv{engine: e, seen: make(map[artifact.Artifact]bool)}
}

// FetchOrFail implements Env. Computed keys come back with their value or
// captured failure; uncomputed keys come back as zero Results and are
// recorded as missing.
func (p *passEnv) FetchOrFail(keys []Key) map[Key]Result {
	out := make(map[Key]Result, len(keys))
	for _, k := range keys {
		if res, ok := p.engine.memo.Get(k.Artifact); ok {
			out[k] = res
			continue
		}
		p.noteMissing(k)
		out[k] = Result{}
	}
	return out
}

// Fetch implements Env: declaration without retrieval.
func (p *passEnv) Fetch(keys []Key) {
	for _, k := range keys {
		if !p.engine.memo.Contains(k.Artifact) {
			p.noteMissing(k)
		}
	}
}

// ValuesMissing implements Env.
func (p *passEnv) ValuesMissing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.missing) > 0
}

// BuildID implements Env. The in-memory engine assigns the build identity
// before any node runs, so it is never missing here; persistent engines may
// return ok=false on first declaration.
func (p *passEnv) BuildID() (uint64, bool) {
	return p.engine.buildID, true
}

func (p *passEnv) noteMissing(k Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[k.Artifact] {
		return
	}
	p.seen[k.Artifact] = true
	p.missing = append(p.missing, k)
}

// missingKeys returns the keys this pass found uncomputed, in first-seen
// order.
func (p *passEnv) missingKeys() []Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Key, len(p.missing))
	copy(out, p.missing)
	return out
}
