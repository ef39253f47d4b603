package box

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecentSetEvictsOldest(t *testing.T) {
	s := newRecentSet(3)
	for _, k := range []string{"a", "b", "c"} {
		s.Add(k)
	}
	assert.Equal(t, 3, s.Len())

	s.Add("d")
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.True(t, s.Contains("d"))
}

func TestRecentSetReAddRefreshes(t *testing.T) {
	s := newRecentSet(2)
	s.Add("a")
	s.Add("b")
	s.Add("a")
	s.Add("c")

	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	assert.True(t, s.Contains("c"))
}
