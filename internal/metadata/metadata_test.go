package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgebuild/internal/artifact"
)

func TestFileOf(t *testing.T) {
	f := FileOf([]byte("hello"), 42)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", f.Digest)
	assert.Equal(t, int64(5), f.Size)
	assert.Equal(t, int64(42), f.ModTimeUnix)

	t.Run("empty content", func(t *testing.T) {
		f := FileOf(nil, 0)
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", f.Digest)
		assert.Zero(t, f.Size)
	})
}

func TestFileEquality(t *testing.T) {
	a := FileOf([]byte("content"), 10)
	b := FileOf([]byte("content"), 10)
	c := FileOf([]byte("other"), 10)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNewAggregate(t *testing.T) {
	one := Constituent{Artifact: artifact.Source("a"), Metadata: FileOf([]byte("a"), 1)}
	two := Constituent{Artifact: artifact.Source("b"), Metadata: FileOf([]byte("b"), 1)}

	agg := NewAggregate([]Constituent{one, two})

	require.Len(t, agg.Constituents(), 2)
	assert.Equal(t, one, agg.Constituents()[0])
	assert.NotEmpty(t, agg.Self().Digest)

	t.Run("order is significant", func(t *testing.T) {
		reordered := NewAggregate([]Constituent{two, one})
		assert.NotEqual(t, agg.Self(), reordered.Self())
	})

	t.Run("same expansion yields same identity", func(t *testing.T) {
		again := NewAggregate([]Constituent{one, two})
		assert.Equal(t, agg.Self(), again.Self())
	})

	t.Run("input slice is copied", func(t *testing.T) {
		in := []Constituent{one, two}
		agg := NewAggregate(in)
		in[0] = two
		assert.Equal(t, one, agg.Constituents()[0])
	})
}
