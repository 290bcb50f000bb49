package builder

import (
	"fmt"
	"gonum.org/v1/gonum/mat"
	"sort"
	"strings"
)

// MaxInner is the largest @inner loop extent accepted on every OCCA backend
const MaxInner = 1024

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// Valid reports whether dt is one of the known data types
func (dt DataType) Valid() bool {
	return dt >= Float32 && dt <= INT64
}

// IsFloat reports whether dt is a floating point type
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// Size returns the size in bytes of a single value
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// CType returns the C type name used inside kernels
func (dt DataType) CType() string {
	switch dt {
	case Float32:
		return "float"
	case Float64:
		return "double"
	case INT32:
		return "int"
	case INT64:
		return "long"
	default:
		return "double"
	}
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// ParseDataType accepts the names returned by DataType.String
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	case "int32", "int":
		return INT32, nil
	case "int64", "long":
		return INT64, nil
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// Config holds configuration for creating a Builder
type Config struct {
	// Partition sizes; each partition becomes one @outer iteration
	K         []int
	FloatType DataType
	IntType   DataType
	// Extra #define NAME VALUE lines emitted after the constants
	Defines map[string]string
	// Matrices embedded as const real_t arrays, see AddStaticMatrix
	StaticMatrices map[string]mat.Matrix
}

// Builder generates the OKL preamble shared by every kernel of a program
type Builder struct {
	NumPartitions int
	K             []int
	KpartMax      int // Maximum K value across all partitions

	FloatType DataType
	IntType   DataType
	Defines   map[string]string

	// Static data to embed
	StaticMatrices map[string]mat.Matrix

	// Generated code
	KernelPreamble string
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) (*Builder, error) {
	if len(cfg.K) == 0 {
		return nil, fmt.Errorf("K array cannot be empty")
	}
	kpartMax := 0
	for i, k := range cfg.K {
		if k <= 0 {
			return nil, fmt.Errorf("K[%d]=%d must be positive", i, k)
		}
		if k > kpartMax {
			kpartMax = k
		}
	}
	if kpartMax > MaxInner {
		return nil, fmt.Errorf("KpartMax=%d exceeds the @inner limit of %d, "+
			"use more partitions", kpartMax, MaxInner)
	}

	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}
	if !floatType.IsFloat() {
		return nil, fmt.Errorf("FloatType %v is not a floating point type", floatType)
	}
	if intType != INT32 && intType != INT64 {
		return nil, fmt.Errorf("IntType %v is not an integer type", intType)
	}

	kb := &Builder{
		NumPartitions:  len(cfg.K),
		K:              make([]int, len(cfg.K)),
		KpartMax:       kpartMax,
		FloatType:      floatType,
		IntType:        intType,
		Defines:        make(map[string]string, len(cfg.Defines)),
		StaticMatrices: make(map[string]mat.Matrix),
	}
	copy(kb.K, cfg.K)
	for name, value := range cfg.Defines {
		kb.Defines[name] = value
	}
	for name, m := range cfg.StaticMatrices {
		if err := kb.AddStaticMatrix(name, m); err != nil {
			return nil, err
		}
	}
	return kb, nil
}

// AddStaticMatrix embeds m in the preamble of the next GeneratePreamble.
// The name must be a valid C identifier; it names the array and its macros.
func (kb *Builder) AddStaticMatrix(name string, m mat.Matrix) error {
	if !isIdentifier(name) {
		return fmt.Errorf("static matrix name %q is not a C identifier", name)
	}
	if m == nil {
		return fmt.Errorf("static matrix %s is nil", name)
	}
	if rows, cols := m.Dims(); rows == 0 || cols == 0 {
		return fmt.Errorf("static matrix %s is empty", name)
	}
	kb.StaticMatrices[name] = m
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// GetTotalElements returns sum of all K values
func (kb *Builder) GetTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// GeneratePreamble generates the kernel preamble with static data and utilities
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	// 1. Type definitions and constants
	sb.WriteString(kb.generateTypeDefinitions())

	// 2. Static matrices and their per-element MATMUL macros
	sb.WriteString(kb.generateStaticMatrices())

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// generateTypeDefinitions creates type definitions based on precision settings
func (kb *Builder) generateTypeDefinitions() string {
	var sb strings.Builder

	floatSuffix := ""
	if kb.FloatType == Float32 {
		floatSuffix = "f"
	}

	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", kb.FloatType.CType()))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", kb.IntType.CType()))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString(fmt.Sprintf("#define REAL_ONE 1.0%s\n", floatSuffix))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))

	if len(kb.Defines) > 0 {
		names := make([]string, 0, len(kb.Defines))
		for name := range kb.Defines {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("#define %s %s\n", name, kb.Defines[name]))
		}
	}
	sb.WriteString("\n")

	return sb.String()
}

// sortedMatrixNames keeps generated source stable between builds
func (kb *Builder) sortedMatrixNames() []string {
	names := make([]string, 0, len(kb.StaticMatrices))
	for name := range kb.StaticMatrices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// generateStaticMatrices emits each matrix as a flat column-major real_t
// array with NAME_ROWS and NAME_COLS, followed by its MATMUL_NAME macro
func (kb *Builder) generateStaticMatrices() string {
	if len(kb.StaticMatrices) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, name := range kb.sortedMatrixNames() {
		m := kb.StaticMatrices[name]
		rows, cols := m.Dims()
		fmt.Fprintf(&sb, "#define %s_ROWS %d\n", name, rows)
		fmt.Fprintf(&sb, "#define %s_COLS %d\n", name, cols)
		fmt.Fprintf(&sb, "const real_t %s[%d] = {\n", name, rows*cols)
		for j := 0; j < cols; j++ {
			vals := make([]string, rows)
			for i := range vals {
				vals[i] = kb.realLiteral(m.At(i, j))
			}
			sep := ","
			if j == cols-1 {
				sep = ""
			}
			fmt.Fprintf(&sb, "\t%s%s\n", strings.Join(vals, ", "), sep)
		}
		sb.WriteString("};\n")
		sb.WriteString(kb.matmulMacro(name))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (kb *Builder) realLiteral(v float64) string {
	if kb.FloatType == Float32 {
		return fmt.Sprintf("%.8ef", v)
	}
	return fmt.Sprintf("%.17e", v)
}

// matmulMacro defines MATMUL_NAME(IN, OUT, E), which computes
// OUT[E*ROWS + r] = sum_c NAME(r, c) * IN[E*COLS + c] for the single element
// E. It contains no @inner loop, so it is used from inside one lane of a
// kernel template.
func (kb *Builder) matmulMacro(name string) string {
	lines := []string{
		fmt.Sprintf("#define MATMUL_%s(IN, OUT, E)", name),
		"\tdo {",
		fmt.Sprintf("\t\tfor (int r_ = 0; r_ < %s_ROWS; ++r_) {", name),
		"\t\t\treal_t acc_ = REAL_ZERO;",
		fmt.Sprintf("\t\t\tfor (int c_ = 0; c_ < %s_COLS; ++c_) {", name),
		fmt.Sprintf("\t\t\t\tacc_ += %s[c_ * %s_ROWS + r_] * (IN)[(E) * %s_COLS + c_];", name, name, name),
		"\t\t\t}",
		fmt.Sprintf("\t\t\t(OUT)[(E) * %s_ROWS + r_] = acc_;", name),
		"\t\t}",
		"\t} while (0)",
	}
	return strings.Join(lines, " \\\n") + "\n"
}
