package files

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanParts(t *testing.T) {
	parts, err := PlanParts(10, 4)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	assert.Equal(t, FilePart{Index: 0, Begin: 0, End: 3}, parts[0])
	assert.Equal(t, FilePart{Index: 1, Begin: 4, End: 7}, parts[1])
	assert.Equal(t, FilePart{Index: 2, Begin: 8, End: 9}, parts[2])
	assert.EqualValues(t, 2, parts[2].Size())
	assert.NoError(t, ValidateTiling(10, parts))

	parts, err = PlanParts(8, 4)
	require.NoError(t, err)
	assert.Len(t, parts, 2)

	_, err = PlanParts(10, 0)
	assert.Error(t, err)
	_, err = PlanParts(0, 4)
	assert.Error(t, err)
}

func TestReadPart(t *testing.T) {
	content := []byte("0123456789")
	parts, err := PlanParts(int64(len(content)), 4)
	require.NoError(t, err)

	last, err := ReadPart(bytes.NewReader(content), parts[2])
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), last.Data)
	sum := sha1.Sum([]byte("89"))
	assert.Equal(t, sum[:], last.Digest)

	// a reader shorter than the plan fails
	_, err = ReadPart(bytes.NewReader(content[:9]), parts[2])
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	content := []byte("hello world")
	digest, err := Digest(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	sum := sha1.Sum(content)
	assert.Equal(t, sum[:], digest)
}

func TestValidateTiling(t *testing.T) {
	tbl := []struct {
		name  string
		size  int64
		parts []FilePart
		want  error
	}{
		{"exact", 8, []FilePart{{Begin: 4, End: 7}, {Begin: 0, End: 3}}, nil},
		{"missing head", 8, []FilePart{{Begin: 4, End: 7}}, ErrGap},
		{"hole", 12, []FilePart{{Begin: 0, End: 3}, {Begin: 8, End: 11}}, ErrGap},
		{"short tail", 12, []FilePart{{Begin: 0, End: 3}, {Begin: 4, End: 7}}, ErrGap},
		{"overlap", 8, []FilePart{{Begin: 0, End: 4}, {Begin: 4, End: 7}}, ErrOverlap},
		{"past end", 6, []FilePart{{Begin: 0, End: 3}, {Begin: 4, End: 7}}, ErrOverlap},
		{"empty", 4, nil, ErrGap},
	}
	for _, tc := range tbl {
		err := ValidateTiling(tc.size, tc.parts)
		if tc.want == nil {
			assert.NoError(t, err, tc.name)
			continue
		}
		assert.True(t, errors.Is(err, tc.want), "%s: %v", tc.name, err)
	}
}
