package builder

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"strings"
	"testing"
)

func TestNewBuilder_Validation(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
	}{
		{"empty_K", Config{}},
		{"zero_partition", Config{K: []int{10, 0}}},
		{"negative_partition", Config{K: []int{-1}}},
		{"inner_too_large", Config{K: []int{MaxInner + 1}}},
		{"int_as_float", Config{K: []int{4}, FloatType: INT32}},
		{"float_as_int", Config{K: []int{4}, IntType: Float64}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBuilder(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewBuilder_Defaults(t *testing.T) {
	kb, err := NewBuilder(Config{K: []int{5, 10, 7}})
	require.NoError(t, err)

	assert.Equal(t, 3, kb.NumPartitions)
	assert.Equal(t, 10, kb.KpartMax)
	assert.Equal(t, 22, kb.GetTotalElements())
	assert.Equal(t, Float64, kb.FloatType)
	assert.Equal(t, INT64, kb.IntType)
}

func TestNewBuilder_CopiesConfig(t *testing.T) {
	k := []int{3, 4}
	defines := map[string]string{"ALPHA": "2"}
	kb, err := NewBuilder(Config{K: k, Defines: defines})
	require.NoError(t, err)

	k[0] = 100
	defines["ALPHA"] = "3"
	assert.Equal(t, 3, kb.K[0])
	assert.Equal(t, "2", kb.Defines["ALPHA"])
}

func TestGeneratePreamble_TypesAndConstants(t *testing.T) {
	testCases := []struct {
		name      string
		floatType DataType
		intType   DataType
		expected  []string
	}{
		{"float64_int64", Float64, INT64,
			[]string{"typedef double real_t;", "typedef long int_t;", "#define REAL_ZERO 0.0\n"}},
		{"float32_int32", Float32, INT32,
			[]string{"typedef float real_t;", "typedef int int_t;", "#define REAL_ZERO 0.0f", "#define REAL_ONE 1.0f"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			kb, err := NewBuilder(Config{K: []int{8, 8, 3}, FloatType: tc.floatType, IntType: tc.intType})
			require.NoError(t, err)

			preamble := kb.GeneratePreamble()
			for _, s := range tc.expected {
				assert.Contains(t, preamble, s)
			}
			assert.Contains(t, preamble, "#define NPART 3")
			assert.Contains(t, preamble, "#define KpartMax 8")
			assert.Equal(t, preamble, kb.KernelPreamble)
		})
	}
}

func TestGeneratePreamble_DefinesSorted(t *testing.T) {
	kb, err := NewBuilder(Config{
		K:       []int{4},
		Defines: map[string]string{"ZETA": "1", "ALPHA": "2.5", "MID": "x"},
	})
	require.NoError(t, err)

	preamble := kb.GeneratePreamble()
	a := strings.Index(preamble, "#define ALPHA 2.5")
	m := strings.Index(preamble, "#define MID x")
	z := strings.Index(preamble, "#define ZETA 1")
	require.True(t, a >= 0 && m >= 0 && z >= 0, preamble)
	assert.True(t, a < m && m < z, "defines must be emitted in name order")
}

func TestGeneratePreamble_StaticMatrixColumnMajor(t *testing.T) {
	// 2x3 row-major input
	dr := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	kb, err := NewBuilder(Config{K: []int{4}, StaticMatrices: map[string]mat.Matrix{"Dr": dr}})
	require.NoError(t, err)

	preamble := kb.GeneratePreamble()
	assert.Contains(t, preamble, "#define Dr_ROWS 2\n#define Dr_COLS 3\n")
	assert.Contains(t, preamble, "const real_t Dr[6] = {")
	// First stored column is (1, 4)
	assert.Contains(t, preamble, "\t1.00000000000000000e+00, 4.00000000000000000e+00,\n")
	assert.Contains(t, preamble, "#define MATMUL_Dr(IN, OUT, E)")
	assert.Contains(t, preamble, "acc_ += Dr[c_ * Dr_ROWS + r_] * (IN)[(E) * Dr_COLS + c_];")
	assert.Contains(t, preamble, "(OUT)[(E) * Dr_ROWS + r_] = acc_;")
	assert.NotContains(t, preamble, "@inner", "the macro runs inside a template lane")

	// Every macro line but the last is continued
	start := strings.Index(preamble, "#define MATMUL_Dr")
	end := strings.Index(preamble[start:], "while (0)")
	require.True(t, end > 0)
	for _, line := range strings.Split(preamble[start:start+end], "\n") {
		if line != "" && !strings.HasSuffix(line, "\t} ") {
			assert.True(t, strings.HasSuffix(line, "\\"), "unterminated macro line %q", line)
		}
	}
}

func TestGeneratePreamble_StaticMatrixFloat32(t *testing.T) {
	kb, err := NewBuilder(Config{K: []int{4}, FloatType: Float32})
	require.NoError(t, err)
	require.NoError(t, kb.AddStaticMatrix("Id", mat.NewDiagDense(2, []float64{1, 0.5})))

	preamble := kb.GeneratePreamble()
	assert.Contains(t, preamble, "const real_t Id[4] = {")
	assert.Contains(t, preamble, "1.00000000e+00f, 0.00000000e+00f,")
	assert.Contains(t, preamble, "0.00000000e+00f, 5.00000000e-01f\n};")
}

func TestAddStaticMatrix_Validation(t *testing.T) {
	kb, err := NewBuilder(Config{K: []int{4}})
	require.NoError(t, err)

	m := mat.NewDense(1, 1, []float64{1})
	assert.Error(t, kb.AddStaticMatrix("", m))
	assert.Error(t, kb.AddStaticMatrix("2x", m))
	assert.Error(t, kb.AddStaticMatrix("has space", m))
	assert.Error(t, kb.AddStaticMatrix("M", nil))
	assert.NoError(t, kb.AddStaticMatrix("M_1", m))

	_, err = NewBuilder(Config{K: []int{4}, StaticMatrices: map[string]mat.Matrix{"bad-name": m}})
	assert.Error(t, err)
}

func TestParamTransfers(t *testing.T) {
	testCases := []struct {
		name             string
		param            *ParamBuilder
		copyTo, copyBack bool
	}{
		{"input_uploads_only", Input("A"), true, false},
		{"output_downloads_only", Output("C"), false, true},
		{"inout_both_ways", InOut("X"), true, true},
		{"scalar_never_moves", Scalar("N").Copy(), false, false},
		{"explicit_copy_to", Output("C").CopyTo(), true, false},
		{"explicit_copy_back", Input("A").CopyBack(), false, true},
		{"explicit_copy", Input("A").Copy(), true, true},
		{"no_copy", InOut("X").NoCopy(), false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			copyTo, copyBack := tc.param.Spec.Transfers()
			assert.Equal(t, tc.copyTo, copyTo)
			assert.Equal(t, tc.copyBack, copyBack)
		})
	}

	host := []float32{1, 2}
	p := Input("A").Bind(host)
	assert.Equal(t, host, p.Spec.HostBinding)
}

func TestDataType(t *testing.T) {
	assert.Equal(t, int64(4), Float32.Size())
	assert.Equal(t, int64(8), Float64.Size())
	assert.Equal(t, int64(4), INT32.Size())
	assert.Equal(t, int64(8), INT64.Size())
	assert.False(t, DataType(0).Valid())
	assert.True(t, INT64.Valid())
	assert.True(t, Float32.IsFloat())
	assert.False(t, INT32.IsFloat())

	for _, dt := range []DataType{Float32, Float64, INT32, INT64} {
		parsed, err := ParseDataType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
	}
	_, err := ParseDataType("complex128")
	assert.Error(t, err)
}
