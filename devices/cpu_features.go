package devices

import (
	"golang.org/x/sys/cpu"
	"strings"
	"sync"
)

// CPUFeatures tracks available CPU instruction set extensions
type CPUFeatures struct {
	HasSSE4    bool
	HasAVX     bool
	HasAVX2    bool
	HasAVX512F bool
	HasFMA     bool
	HasASIMD   bool // arm64 Advanced SIMD
	HasFP      bool // arm64 floating point
}

var (
	cpuOnce     sync.Once
	cpuFeatures CPUFeatures
)

// DetectCPU returns the host features, detected once per process
func DetectCPU() CPUFeatures {
	cpuOnce.Do(func() {
		cpuFeatures = CPUFeatures{
			HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
			HasAVX:     cpu.X86.HasAVX,
			HasAVX2:    cpu.X86.HasAVX2,
			HasAVX512F: cpu.X86.HasAVX512F,
			HasFMA:     cpu.X86.HasFMA,
			HasASIMD:   cpu.ARM64.HasASIMD,
			HasFP:      cpu.ARM64.HasFP,
		}
	})
	return cpuFeatures
}

// String lists the detected features, "scalar" when there are none
func (f CPUFeatures) String() string {
	var features []string
	if f.HasSSE4 {
		features = append(features, "SSE4")
	}
	if f.HasAVX {
		features = append(features, "AVX")
	}
	if f.HasAVX2 {
		features = append(features, "AVX2")
	}
	if f.HasAVX512F {
		features = append(features, "AVX512F")
	}
	if f.HasFMA {
		features = append(features, "FMA")
	}
	if f.HasFP {
		features = append(features, "FP")
	}
	if f.HasASIMD {
		features = append(features, "ASIMD")
	}
	if len(features) == 0 {
		return "scalar"
	}
	return strings.Join(features, " ")
}
