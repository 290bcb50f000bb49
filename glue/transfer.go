package glue

import (
	"fmt"
	"github.com/notargets/glue/glue/builder"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
	"unsafe"
)

// hostDataType returns the element type and length of a host slice
func hostDataType(host interface{}) (builder.DataType, int, error) {
	switch data := host.(type) {
	case []float32:
		return builder.Float32, len(data), nil
	case []float64:
		return builder.Float64, len(data), nil
	case []int32:
		return builder.INT32, len(data), nil
	case []int64:
		return builder.INT64, len(data), nil
	default:
		return 0, 0, fmt.Errorf("unsupported host type %T", host)
	}
}

// compatible allows conversion within the float family and the int family
func compatible(a, b builder.DataType) bool {
	return a.IsFloat() == b.IsFloat()
}

func newDeviceSlice(dt builder.DataType, n int) interface{} {
	switch dt {
	case builder.Float32:
		return make([]float32, n)
	case builder.Float64:
		return make([]float64, n)
	case builder.INT32:
		return make([]int32, n)
	default:
		return make([]int64, n)
	}
}

// slicePointer returns the address of the first element
func slicePointer(s interface{}) unsafe.Pointer {
	switch data := s.(type) {
	case []float32:
		return unsafe.Pointer(&data[0])
	case []float64:
		return unsafe.Pointer(&data[0])
	case []int32:
		return unsafe.Pointer(&data[0])
	case []int64:
		return unsafe.Pointer(&data[0])
	default:
		panic(fmt.Sprintf("slicePointer: unsupported type %T", s))
	}
}

// stageForDevice returns src laid out as device values, converting between
// widths when needed. src itself is returned when no conversion is needed.
func stageForDevice(src interface{}, deviceType builder.DataType, n int) (interface{}, error) {
	hostType, length, err := hostDataType(src)
	if err != nil {
		return nil, err
	}
	if length != n {
		return nil, fmt.Errorf("source has %d values, buffer holds %d", length, n)
	}
	if !compatible(hostType, deviceType) {
		return nil, fmt.Errorf("cannot convert %v to %v", hostType, deviceType)
	}
	if hostType == deviceType {
		return src, nil
	}
	staged := newDeviceSlice(deviceType, n)
	if err := convertInto(src, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// convertInto copies src into dst, converting between the two float widths
// or the two int widths
func convertInto(src, dst interface{}) error {
	switch s := src.(type) {
	case []float32:
		switch d := dst.(type) {
		case []float32:
			copy(d, s)
		case []float64:
			convertSlice(d, s)
		default:
			return fmt.Errorf("unsupported conversion from float32 to %T", dst)
		}
	case []float64:
		switch d := dst.(type) {
		case []float64:
			copy(d, s)
		case []float32:
			convertSlice(d, s)
		default:
			return fmt.Errorf("unsupported conversion from float64 to %T", dst)
		}
	case []int32:
		switch d := dst.(type) {
		case []int32:
			copy(d, s)
		case []int64:
			convertSlice(d, s)
		default:
			return fmt.Errorf("unsupported conversion from int32 to %T", dst)
		}
	case []int64:
		switch d := dst.(type) {
		case []int64:
			copy(d, s)
		case []int32:
			// Values outside int32 range wrap
			convertSlice(d, s)
		default:
			return fmt.Errorf("unsupported conversion from int64 to %T", dst)
		}
	default:
		return fmt.Errorf("unsupported source type %T", src)
	}
	return nil
}

func convertSlice[D, S constraints.Integer | constraints.Float](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}

// stageMatrix flattens m column-major: entry (i, j) goes to j*rows + i
func stageMatrix(m mat.Matrix, deviceType builder.DataType, n int) (interface{}, error) {
	if !deviceType.IsFloat() {
		return nil, fmt.Errorf("matrices can only be written to float buffers, not %v", deviceType)
	}
	rows, cols := m.Dims()
	if rows*cols != n {
		return nil, fmt.Errorf("matrix has %d entries, buffer holds %d", rows*cols, n)
	}
	flat := make([]float64, n)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat[j*rows+i] = m.At(i, j)
		}
	}
	if deviceType == builder.Float64 {
		return flat, nil
	}
	staged := make([]float32, n)
	if err := convertInto(flat, staged); err != nil {
		return nil, err
	}
	return staged, nil
}

// unstageMatrix is the inverse of stageMatrix
func unstageMatrix(stage interface{}, m *mat.Dense) error {
	rows, cols := m.Dims()
	flat := make([]float64, rows*cols)
	if err := convertInto(stage, flat); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, flat[j*rows+i])
		}
	}
	return nil
}
