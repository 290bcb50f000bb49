package partitions

import (
	"github.com/notargets/glue/glue/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSplit(t *testing.T) {
	testCases := []struct {
		name     string
		n, tile  int
		expected []int
	}{
		{"exact", 1024, 256, []int{256, 256, 256, 256}},
		{"short_tail", 1000, 256, []int{256, 256, 256, 232}},
		{"single", 10, 256, []int{10}},
		{"tile_of_one", 3, 1, []int{1, 1, 1}},
		{"max_inner", 2049, builder.MaxInner, []int{1024, 1024, 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := Split(tc.n, tc.tile)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, l.K)
			assert.Equal(t, len(tc.expected), l.NumPartitions)
			assert.Equal(t, tc.n, l.Total)
			assert.Equal(t, tc.expected[0], l.KpartMax)
			assert.NoError(t, l.Validate())
		})
	}
}

func TestSplit_InvalidArguments(t *testing.T) {
	for _, args := range [][2]int{{0, 16}, {-5, 16}, {10, 0}, {10, builder.MaxInner + 1}} {
		_, err := Split(args[0], args[1])
		assert.Error(t, err, "Split(%d, %d)", args[0], args[1])
	}
}

func TestLayout_Partition(t *testing.T) {
	l, err := Split(10, 4)
	require.NoError(t, err)

	expected := []int{0, 0, 0, 0, 1, 1, 1, 1, 2, 2}
	for idx, p := range expected {
		assert.Equal(t, p, l.Partition(idx), "item %d", idx)
	}
	assert.Equal(t, -1, l.Partition(-1))
	assert.Equal(t, -1, l.Partition(10))
}

func TestLayout_ValidateDetectsCorruption(t *testing.T) {
	l, err := Split(10, 4)
	require.NoError(t, err)

	l.Offsets[2] = 7
	assert.Error(t, l.Validate())

	l, _ = Split(10, 4)
	l.KpartMax = 5
	assert.Error(t, l.Validate())

	l, _ = Split(10, 4)
	l.Total = 11
	assert.Error(t, l.Validate())
}

func TestLayout_BuilderConfig(t *testing.T) {
	l, err := Split(600, 256)
	require.NoError(t, err)

	cfg := l.BuilderConfig(builder.Float32, builder.INT32)
	kb, err := builder.NewBuilder(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, kb.NumPartitions)
	assert.Equal(t, 256, kb.KpartMax)
	assert.Equal(t, 600, kb.GetTotalElements())

	cfg.K[0] = 1
	assert.Equal(t, 256, l.K[0], "config must not alias the layout")
}
