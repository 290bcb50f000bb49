package glue

import (
	"github.com/notargets/glue/glue/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"testing"
)

func TestStageForDevice_NoConversionReturnsSource(t *testing.T) {
	src := []float32{1, 2, 3}
	staged, err := stageForDevice(src, builder.Float32, 3)
	require.NoError(t, err)
	assert.Equal(t, slicePointer(src), slicePointer(staged))
}

func TestStageForDevice_Conversions(t *testing.T) {
	testCases := []struct {
		name       string
		src        interface{}
		deviceType builder.DataType
		expected   interface{}
	}{
		{"float64_to_float32", []float64{1.5, -2.25}, builder.Float32, []float32{1.5, -2.25}},
		{"float32_to_float64", []float32{0.5, 4}, builder.Float64, []float64{0.5, 4}},
		{"int32_to_int64", []int32{-7, 9}, builder.INT64, []int64{-7, 9}},
		{"int64_to_int32", []int64{3, -1}, builder.INT32, []int32{3, -1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			staged, err := stageForDevice(tc.src, tc.deviceType, 2)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, staged)
		})
	}
}

func TestStageForDevice_Errors(t *testing.T) {
	_, err := stageForDevice([]float32{1, 2}, builder.Float32, 3)
	assert.Error(t, err, "length mismatch")

	_, err = stageForDevice([]float32{1, 2}, builder.INT32, 2)
	assert.Error(t, err, "float to int")

	_, err = stageForDevice([]int{1, 2}, builder.INT64, 2)
	assert.Error(t, err, "plain int slices are not a device layout")

	_, err = stageForDevice("data", builder.Float64, 4)
	assert.Error(t, err)
}

func TestStageMatrix_ColumnMajorRoundTrip(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})

	staged, err := stageMatrix(m, builder.Float64, 6)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, staged)

	staged32, err := stageMatrix(m, builder.Float32, 6)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, staged32)

	back := mat.NewDense(2, 3, nil)
	require.NoError(t, unstageMatrix(staged32, back))
	assert.True(t, mat.Equal(m, back))

	_, err = stageMatrix(m, builder.INT32, 6)
	assert.Error(t, err)
	_, err = stageMatrix(m, builder.Float64, 5)
	assert.Error(t, err)
}

func TestConvertInto_RejectsCrossFamily(t *testing.T) {
	assert.Error(t, convertInto([]float32{1}, []int32{0}))
	assert.Error(t, convertInto([]int64{1}, []float64{0}))
	assert.Error(t, convertInto([]string{"x"}, []float64{0}))
}

func TestHostDataType(t *testing.T) {
	dt, n, err := hostDataType(make([]int64, 5))
	require.NoError(t, err)
	assert.Equal(t, builder.INT64, dt)
	assert.Equal(t, 5, n)

	_, _, err = hostDataType(map[int]int{})
	assert.Error(t, err)
}
