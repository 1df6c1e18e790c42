package chunker

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Sizes(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		size      int
		wantSizes []int
	}{
		{name: "exact multiple", total: 8, size: 4, wantSizes: []int{4, 4}},
		{name: "remainder", total: 10, size: 4, wantSizes: []int{4, 4, 2}},
		{name: "smaller than chunk", total: 3, size: 4, wantSizes: []int{3}},
		{name: "single byte chunks", total: 3, size: 1, wantSizes: []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.Repeat([]byte{0xAB}, tt.total)

			got, err := Split(buf, tt.size)
			require.NoError(t, err)

			sizes := make([]int, 0, len(got))
			for _, c := range got {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.wantSizes, sizes)
			assert.Equal(t, len(tt.wantSizes), Count(int64(tt.total), tt.size))
		})
	}
}

func TestSplit_ConcatenationReproducesInput(t *testing.T) {
	buf := []byte("the quick brown fox jumps over the lazy dog")

	for size := 1; size <= len(buf)+1; size++ {
		chunks, err := Split(buf, size)
		require.NoError(t, err)
		assert.Equal(t, buf, bytes.Join(chunks, nil), "size=%d", size)
	}
}

func TestSplit_HelloWorldExample(t *testing.T) {
	const mb = 1 << 20
	unit := []byte("hello world")
	buf := bytes.Repeat(unit, (5*mb/2)/len(unit)+1)[:5*mb/2]

	chunks, err := Split(buf, mb)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], mb)
	assert.Len(t, chunks[1], mb)
	assert.Len(t, chunks[2], mb/2)
}

func TestSplit_Deterministic(t *testing.T) {
	buf := []byte("same input, same output")

	a, err := Split(buf, 5)
	require.NoError(t, err)
	b, err := Split(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplit_AppendDoesNotClobberNextChunk(t *testing.T) {
	buf := []byte("aaaabbbb")
	chunks, err := Split(buf, 4)
	require.NoError(t, err)

	_ = append(chunks[0], 'x')
	assert.Equal(t, []byte("bbbb"), chunks[1])
}

func TestSplit_InvalidInput(t *testing.T) {
	_, err := Split(nil, 4)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = Split([]byte{}, 4)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = Split([]byte("x"), 0)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = Split([]byte("x"), -1)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestCount_Degenerate(t *testing.T) {
	assert.Equal(t, 0, Count(0, 4))
	assert.Equal(t, 0, Count(10, 0))
	assert.Equal(t, 3, Count(2621440, DefaultChunkSize))
}
