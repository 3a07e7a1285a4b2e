package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkKeepsShortPassages(t *testing.T) {
	c := NewSimple(10, 2)
	require.Equal(t, []string{"drink water daily"}, c.Chunk("  drink water daily "))
	require.Nil(t, c.Chunk("   "))
}

func TestChunkSplitsByBudget(t *testing.T) {
	c := NewSimple(4, 0)
	chunks := c.Chunk("a b c d\ne f g h i")
	require.Equal(t, []string{"a b c d", "e f g h", "i"}, chunks)
}

func TestChunkOverlap(t *testing.T) {
	c := NewSimple(4, 1)
	chunks := c.Chunk("a b c d e f g")
	require.Equal(t, []string{"a b c d", "d e f g"}, chunks)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len(strings.Fields(chunk)), 4)
	}
}

func TestSplitPreservesOrder(t *testing.T) {
	c := NewSimple(2, 0)
	require.Equal(t, []string{"one", "a b", "c"}, c.Split([]string{"one", "a b c"}))
}
