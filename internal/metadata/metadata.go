// Package metadata models the content identity of artifacts at a point in
// time. A File captures enough about a single file to detect change; an
// Aggregate captures the expansion of a virtual grouping artifact into its
// constituent files. Values are computed at most once per artifact per build
// and are immutable afterwards, so structural sharing between evaluation
// passes is safe.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vk/forgebuild/internal/artifact"
)

// Value is the closed set of metadata variants an artifact can resolve to:
// File or Aggregate. Code switching on Value must treat any other dynamic
// type as an engine invariant violation, not a build error.
type Value interface {
	isValue()
}

// File is the content identity of a single file: digest, size, and a coarse
// modification clock. File is comparable; two equal File values mean the
// content is unchanged for cache-invalidation purposes.
type File struct {
	// Digest is the lowercase hex sha256 of the file content.
	Digest string
	// Size is the content length in bytes.
	Size int64
	// ModTimeUnix is the file's modification time truncated to seconds.
	// It breaks ties between same-digest computations across builds; it is
	// never a substitute for the digest.
	ModTimeUnix int64
}

func (File) isValue() {}

func (f File) String() string {
	return fmt.Sprintf("file(%s, %d bytes)", shortDigest(f.Digest), f.Size)
}

// FileOf digests content into a File.
func FileOf(content []byte, modTimeUnix int64) File {
	sum := sha256.Sum256(content)
	return File{
		Digest:      hex.EncodeToString(sum[:]),
		Size:        int64(len(content)),
		ModTimeUnix: modTimeUnix,
	}
}

// Constituent is one (artifact, file metadata) pair inside an aggregate.
type Constituent struct {
	Artifact artifact.Artifact
	Metadata File
}

// Aggregate is the metadata of a virtual grouping artifact: the ordered
// constituents it expands to, plus a self digest computed over their digests.
// Aggregates are flat: a constituent always resolves to a File, never to
// another Aggregate. The graph construction guarantees this.
type Aggregate struct {
	constituents []Constituent
	self         File
}

func (Aggregate) isValue() {}

// NewAggregate builds an Aggregate over the given constituents. Order is
// significant: the self digest covers constituent digests in order, so a
// reordered expansion is a changed aggregate.
func NewAggregate(constituents []Constituent) Aggregate {
	h := sha256.New()
	for _, c := range constituents {
		h.Write([]byte(c.Artifact.Path))
		h.Write([]byte{0})
		h.Write([]byte(c.Metadata.Digest))
		h.Write([]byte{0})
	}
	cs := make([]Constituent, len(constituents))
	copy(cs, constituents)
	return Aggregate{
		constituents: cs,
		self:         File{Digest: hex.EncodeToString(h.Sum(nil))},
	}
}

// Constituents returns the ordered expansion of the aggregate. The returned
// slice is shared; callers must not mutate it.
func (a Aggregate) Constituents() []Constituent { return a.constituents }

// Self returns the aggregate's own content identity. It stands in for the
// aggregate wherever a File is needed, e.g. as an action cache key component.
func (a Aggregate) Self() File { return a.self }

func (a Aggregate) String() string {
	return fmt.Sprintf("aggregate(%s, %d files)", shortDigest(a.self.Digest), len(a.constituents))
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
