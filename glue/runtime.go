package glue

import (
	"fmt"
	"github.com/notargets/glue/devices"
	"github.com/notargets/glue/glue/builder"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config selects which devices a Runtime opens and the default precision of
// the programs built on them
type Config struct {
	// Device kinds to open; empty means CPU and GPU
	Kinds []devices.Kind
	// Backends to open; empty means devices.DefaultBackends filtered by Kinds
	Backends []devices.Backend
	// Device ids tried per accelerator backend; host backends always expose one
	DevicesPerBackend int

	FloatType builder.DataType
	IntType   builder.DataType

	Logger *slog.Logger
}

func (cfg Config) withDefaults() Config {
	if len(cfg.Backends) == 0 {
		cfg.Backends = devices.BackendsFor(cfg.Kinds...)
	} else if len(cfg.Kinds) > 0 {
		var filtered []devices.Backend
		for _, b := range cfg.Backends {
			for _, k := range cfg.Kinds {
				if b.Kind == k {
					filtered = append(filtered, b)
					break
				}
			}
		}
		cfg.Backends = filtered
	}
	if cfg.DevicesPerBackend <= 0 {
		cfg.DevicesPerBackend = 1
	}
	if cfg.FloatType == 0 {
		cfg.FloatType = builder.Float32
	}
	if cfg.IntType == 0 {
		cfg.IntType = builder.INT32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Runtime is the top-level handle owning every opened device
type Runtime struct {
	cfg  Config
	log  *slog.Logger
	envs []*Environment

	allocated  atomic.Int64
	peak       atomic.Int64
	uploaded   atomic.Int64
	downloaded atomic.Int64

	mu     sync.Mutex
	closed bool
}

// New tries the configured backends and opens one Environment per device
// found
func New(cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	rt := &Runtime{cfg: cfg, log: cfg.Logger}

	for _, backend := range cfg.Backends {
		count := cfg.DevicesPerBackend
		if backend.IsSingleton() {
			count = 1
		}
		for deviceID := 0; deviceID < count; deviceID++ {
			env, err := openEnvironment(rt, len(rt.envs), backend, deviceID)
			if err != nil {
				rt.log.Debug("backend unavailable",
					"mode", backend.Mode, "device_id", deviceID, "error", err)
				break
			}
			rt.log.Info("opened environment",
				"id", env.ID(), "kind", env.Kind(), "mode", env.Mode(), "device_id", deviceID)
			rt.envs = append(rt.envs, env)
		}
	}

	if len(rt.envs) == 0 {
		return nil, newError(DeviceNotFound, "New",
			"no device could be opened from %d backends", len(cfg.Backends))
	}
	return rt, nil
}

// Config returns the effective configuration after defaults
func (rt *Runtime) Config() Config {
	return rt.cfg
}

// Environments returns every open environment in creation order
func (rt *Runtime) Environments() []*Environment {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	out := make([]*Environment, len(rt.envs))
	copy(out, rt.envs)
	return out
}

// Environment returns the first open environment of the given kind
func (rt *Runtime) Environment(kind devices.Kind) (*Environment, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil, newError(Released, "Environment", "runtime is closed")
	}
	for _, env := range rt.envs {
		if env.Kind() == kind {
			return env, nil
		}
	}
	return nil, newError(DeviceNotFound, "Environment", "no %s environment is open", kind)
}

// MemoryStats reports device bytes held by live buffers and the high-water mark
func (rt *Runtime) MemoryStats() (allocated, peak int64) {
	return rt.allocated.Load(), rt.peak.Load()
}

// TransferStats reports the bytes copied host→device and device→host so far
func (rt *Runtime) TransferStats() (uploaded, downloaded int64) {
	return rt.uploaded.Load(), rt.downloaded.Load()
}

// Dump writes one line per open environment followed by the memory and
// transfer counters
func (rt *Runtime) Dump(w io.Writer) error {
	envs := rt.Environments()
	if _, err := fmt.Fprintf(w, "glue runtime: %d environment(s)\n", len(envs)); err != nil {
		return err
	}
	for _, env := range envs {
		if _, err := fmt.Fprintf(w, "  %s\n", env.Info()); err != nil {
			return err
		}
	}
	allocated, peak := rt.MemoryStats()
	uploaded, downloaded := rt.TransferStats()
	_, err := fmt.Fprintf(w, "  memory: %d bytes allocated, %d peak; transfers: %d up, %d down\n",
		allocated, peak, uploaded, downloaded)
	return err
}

func (rt *Runtime) trackAlloc(bytes int64) {
	current := rt.allocated.Add(bytes)
	for {
		p := rt.peak.Load()
		if current <= p || rt.peak.CompareAndSwap(p, current) {
			return
		}
	}
}

func (rt *Runtime) trackFree(bytes int64) {
	rt.allocated.Add(-bytes)
}

// Close releases every environment and everything still allocated on it.
// Calling Close more than once is a no-op.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	envs := rt.envs
	rt.envs = nil
	rt.mu.Unlock()

	var first error
	// Reverse order of creation
	for i := len(envs) - 1; i >= 0; i-- {
		if err := envs[i].release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
