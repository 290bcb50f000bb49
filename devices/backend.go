package devices

import (
	"fmt"
	"strings"
)

// Kind separates host processors from accelerators
type Kind int

const (
	CPU Kind = iota
	GPU
)

func (k Kind) String() string {
	switch k {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts "cpu" or "gpu" in any case
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "gpu":
		return GPU, nil
	}
	return 0, fmt.Errorf("unknown device kind %q, want cpu or gpu", s)
}

// Backend is one OCCA mode
type Backend struct {
	Mode string
	Kind Kind
}

// DefaultBackends lists every mode in search order, parallel CPU backends
// before Serial
var DefaultBackends = []Backend{
	{Mode: "OpenMP", Kind: CPU},
	{Mode: "Serial", Kind: CPU},
	{Mode: "CUDA", Kind: GPU},
	{Mode: "HIP", Kind: GPU},
	{Mode: "OpenCL", Kind: GPU},
	{Mode: "Metal", Kind: GPU},
}

// Properties returns the OCCA device properties JSON for this backend
func (b Backend) Properties(deviceID int) string {
	switch b.Mode {
	case "Serial", "OpenMP":
		return fmt.Sprintf(`{"mode": "%s"}`, b.Mode)
	case "OpenCL":
		return fmt.Sprintf(`{"mode": "OpenCL", "platform_id": 0, "device_id": %d}`, deviceID)
	default:
		return fmt.Sprintf(`{"mode": "%s", "device_id": %d}`, b.Mode, deviceID)
	}
}

// IsSingleton reports whether the mode exposes exactly one device
func (b Backend) IsSingleton() bool {
	return b.Kind == CPU
}

// KindOfMode classifies the mode string reported by a live device
func KindOfMode(mode string) Kind {
	for _, b := range DefaultBackends {
		if strings.EqualFold(b.Mode, mode) {
			return b.Kind
		}
	}
	// Unknown modes are accelerators; the host modes are all listed
	return GPU
}

// BackendsFor filters DefaultBackends by kind, preserving search order
func BackendsFor(kinds ...Kind) []Backend {
	if len(kinds) == 0 {
		out := make([]Backend, len(DefaultBackends))
		copy(out, DefaultBackends)
		return out
	}
	var out []Backend
	for _, b := range DefaultBackends {
		for _, k := range kinds {
			if b.Kind == k {
				out = append(out, b)
				break
			}
		}
	}
	return out
}
