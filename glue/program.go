package glue

import (
	"github.com/notargets/glue/glue/builder"
	"github.com/notargets/gocca"
	"sort"
	"sync"
)

// Program is OKL source plus the generated preamble it is compiled with
type Program struct {
	env    *Environment
	source string

	mu       sync.Mutex
	built    bool
	released bool
	builder  *builder.Builder
	full     string
	kernels  map[string]*Kernel
}

func (p *Program) Environment() *Environment {
	return p.env
}

// Build fixes the preamble the program's kernels are compiled with,
// including any cfg.StaticMatrices and their MATMUL macros.
// Zero precision fields fall back to the runtime configuration. Rebuilding
// releases the kernels created from the previous build.
func (p *Program) Build(cfg builder.Config) error {
	const op = "Build"
	if cfg.FloatType == 0 {
		cfg.FloatType = p.env.rt.cfg.FloatType
	}
	if cfg.IntType == 0 {
		cfg.IntType = p.env.rt.cfg.IntType
	}
	kb, err := builder.NewBuilder(cfg)
	if err != nil {
		return wrapError(BuildFailure, op, err, "invalid build configuration")
	}

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return newError(Released, op, "program has been released")
	}
	stale := p.takeKernels()
	p.builder = kb
	p.full = kb.GeneratePreamble() + "\n" + p.source
	p.built = true
	p.mu.Unlock()

	for _, k := range stale {
		if err := k.free(); err != nil {
			return err
		}
	}
	p.env.log.Debug("built program", "partitions", kb.NumPartitions, "kpart_max", kb.KpartMax,
		"elements", kb.GetTotalElements(), "static_matrices", len(kb.StaticMatrices),
		"real_t", kb.FloatType, "int_t", kb.IntType)
	return nil
}

// Source returns the preamble and user source as compiled; empty before Build
func (p *Program) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.full
}

// Builder returns the builder of the last Build, nil before
func (p *Program) Builder() *builder.Builder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builder
}

// CreateKernel compiles the named kernel, or returns the cached one
func (p *Program) CreateKernel(name string) (*Kernel, error) {
	const op = "CreateKernel"
	if name == "" {
		return nil, newError(InvalidArgument, op, "kernel name is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, newError(Released, op, "program has been released")
	}
	if !p.built {
		return nil, newError(BuildFailure, op, "program must be built before creating kernel %s", name)
	}
	if k, ok := p.kernels[name]; ok {
		return k, nil
	}

	full := p.full
	var kernel *gocca.OCCAKernel
	err := p.env.queue.do(op, func() error {
		var err error
		if p.env.device.Mode() == "OpenMP" {
			// OCCA does not pass its default -O3 to OpenMP builds
			props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
			defer props.Free()
			kernel, err = p.env.device.BuildKernelFromString(full, name, props)
		} else {
			kernel, err = p.env.device.BuildKernelFromString(full, name, nil)
		}
		return err
	})
	if err != nil {
		if CodeOf(err) == Released {
			return nil, err
		}
		return nil, wrapError(BuildFailure, op, err, "failed to build kernel %s", name)
	}
	if kernel == nil {
		return nil, newError(InvalidKernel, op, "kernel build returned nil for %s", name)
	}

	k := &Kernel{
		program:   p,
		name:      name,
		kernel:    kernel,
		floatType: p.builder.FloatType,
		intType:   p.builder.IntType,
	}
	p.kernels[name] = k
	p.env.log.Debug("created kernel", "name", name)
	return k, nil
}

func (p *Program) kernelNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.kernels))
	for name := range p.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// takeKernels empties the cache; p.mu must be held
func (p *Program) takeKernels() []*Kernel {
	ks := make([]*Kernel, 0, len(p.kernels))
	for _, k := range p.kernels {
		ks = append(ks, k)
	}
	p.kernels = make(map[string]*Kernel)
	return ks
}

func (p *Program) untrackKernel(k *Kernel) {
	p.mu.Lock()
	if p.kernels[k.name] == k {
		delete(p.kernels, k.name)
	}
	p.mu.Unlock()
}

// Release frees every kernel created from the program
func (p *Program) Release() error {
	if err := p.free(); err != nil {
		return err
	}
	p.env.untrackProgram(p)
	return nil
}

func (p *Program) free() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return newError(Released, "Release", "program has already been released")
	}
	p.released = true
	kernels := p.takeKernels()
	p.mu.Unlock()

	var first error
	for _, k := range kernels {
		if err := k.free(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
