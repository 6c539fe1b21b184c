package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	src := Source("src/a.c")
	assert.True(t, src.IsSource())
	assert.False(t, src.IsAggregate())
	assert.Empty(t, src.Owner)

	der := Derived("out/a.o", "//pkg:a")
	assert.False(t, der.IsSource())
	assert.Equal(t, Label("//pkg:a"), der.Owner)
	assert.Equal(t, DerivedKind, der.Kind)

	agg := Aggregate("libs/all", "//libs:all")
	assert.True(t, agg.IsAggregate())
}

func TestArtifactAsMapKey(t *testing.T) {
	m := map[Artifact]int{}
	m[Source("a")] = 1
	m[Source("a")] = 2
	m[Derived("a", "//x")] = 3

	// Same path with a different kind or owner is a different identity.
	assert.Len(t, m, 2)
	assert.Equal(t, 2, m[Source("a")])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "source", SourceKind.String())
	assert.Equal(t, "derived", DerivedKind.String())
	assert.Equal(t, "aggregate", AggregateKind.String())
}
