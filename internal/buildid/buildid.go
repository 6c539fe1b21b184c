// Package buildid provides the process-wide build identity: a value that
// changes on every build and never within one. Volatile actions depend on it
// so that the graph considers them potentially dirty each build even when no
// real input changed. The sequence is injected where needed rather than read
// as ambient global state.
package buildid

import "sync/atomic"

// Sequence issues monotonically increasing build identities. The zero value
// is ready to use; identities start at 1 so that zero always means "no build
// yet".
type Sequence struct {
	n atomic.Uint64
}

// Next advances to and returns the identity for a new build. The returned
// value is read-only for the duration of that build.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Current returns the most recently issued identity, or 0 when no build has
// started.
func (s *Sequence) Current() uint64 {
	return s.n.Load()
}
